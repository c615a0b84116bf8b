package service

import (
	"testing"
	"time"

	"billing/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStockDeltasMergePerProduct(t *testing.T) {
	goodID := uuid.New()
	serviceID := uuid.New()

	oldItems := model.LineItems{
		{ProductID: goodID, Type: model.ItemTypeGood, Quantity: 3},
		{ProductID: serviceID, Type: model.ItemTypeService, Quantity: 10},
	}
	newItems := model.LineItems{
		{ProductID: goodID, Type: model.ItemTypeGood, Quantity: 5},
		{ProductID: serviceID, Type: model.ItemTypeService, Quantity: 2},
	}

	deltas := stockDeltas{}
	deltas.add(oldItems, +1)
	deltas.add(newItems, -1)

	// Only the net change per good survives; services never appear.
	assert.Equal(t, -2, deltas[goodID])
	_, ok := deltas[serviceID]
	assert.False(t, ok)
}

func batchProduct(quantities []int, expiries []*time.Time) *model.Product {
	p := &model.Product{Type: model.ItemTypeGood}
	for i, q := range quantities {
		p.Batches = append(p.Batches, model.Batch{
			Label:     string(rune('A' + i)),
			Quantity:  q,
			ExpiresAt: expiries[i],
		})
	}
	return p
}

func TestApplyBatchDeltaConsumesEarliestFirst(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(30 * 24 * time.Hour)
	p := batchProduct([]int{5, 10}, []*time.Time{&later, &soon})

	// All seven units come from the soon-expiring batch.
	applyBatchDelta(p, -7)
	assert.Equal(t, 5, p.Batches[0].Quantity)
	assert.Equal(t, 3, p.Batches[1].Quantity)

	// The next five drain the soon batch and spill into the later one.
	applyBatchDelta(p, -5)
	assert.Equal(t, 3, p.Batches[0].Quantity)
	assert.Equal(t, 0, p.Batches[1].Quantity)
}

func TestApplyBatchDeltaNilExpiryConsumedLast(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour)
	p := batchProduct([]int{5, 5}, []*time.Time{nil, &soon})

	applyBatchDelta(p, -6)
	assert.Equal(t, 4, p.Batches[0].Quantity, "undated batch drains only after dated ones")
	assert.Equal(t, 0, p.Batches[1].Quantity)
}

func TestApplyBatchDeltaRestoresToEarliest(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(30 * 24 * time.Hour)
	p := batchProduct([]int{5, 5}, []*time.Time{&later, &soon})

	applyBatchDelta(p, +4)
	assert.Equal(t, 5, p.Batches[0].Quantity)
	assert.Equal(t, 9, p.Batches[1].Quantity)
}

func TestApplyBatchDeltaBackorderGoesNegativeOnLast(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(30 * 24 * time.Hour)
	p := batchProduct([]int{2, 3}, []*time.Time{&later, &soon})

	applyBatchDelta(p, -8)
	assert.Equal(t, 0, p.Batches[1].Quantity)
	assert.Equal(t, -3, p.Batches[0].Quantity, "backorder remainder lands on the last-expiring batch")
}

func TestApplyBatchDeltaNoBatchesIsNoop(t *testing.T) {
	p := &model.Product{Type: model.ItemTypeGood, Stock: 10}
	applyBatchDelta(p, -3)
	assert.Empty(t, p.Batches)
}
