package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"billing/internal/apperr"
	"billing/internal/model"
	ws "billing/internal/websocket"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// The inventory ledger is not a standalone component: it is the set of stock
// read/validate/mutate steps the invoice engine runs inside its own
// transaction. Service-type line items never participate.

// stockDeltas accumulates the net stock change per product for one invoice
// mutation. Positive values restore stock, negative values consume it.
type stockDeltas map[uuid.UUID]int

// add merges the effect of a line item list into the delta map. sign is -1
// when the items are being applied (stock consumed) and +1 when reverted.
func (d stockDeltas) add(items model.LineItems, sign int) {
	for _, item := range items {
		if item.Type == model.ItemTypeService {
			continue
		}
		d[item.ProductID] += sign * item.Quantity
	}
}

// applyStockDeltas locks every touched product once, validates sufficiency,
// and persists the new stock levels. Must run inside the caller's
// transaction: any rejection aborts the whole invoice operation.
func (s *invoiceService) applyStockDeltas(ctx context.Context, tenantID string, deltas stockDeltas, allowBackorder bool) error {
	// Deterministic lock order keeps concurrent invoice transactions from
	// deadlocking on overlapping product sets.
	ids := make([]uuid.UUID, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		delta := deltas[id]

		product, err := s.productRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product %s not found", id)
			}
			return fmt.Errorf("failed to read product %s: %w", id, err)
		}
		if product.TenantID != tenantID {
			return apperr.PermissionDenied("product %s belongs to another tenant", id)
		}
		if !product.IsGood() {
			continue
		}

		newStock := product.Stock + delta
		if newStock < 0 && !allowBackorder {
			return apperr.FailedPrecondition(
				"insufficient stock for %s: available %d, requested %d",
				product.Name, product.Stock, -delta)
		}

		applyBatchDelta(product, delta)
		product.Stock = newStock
		if err := s.productRepo.Save(ctx, product); err != nil {
			return fmt.Errorf("failed to update stock for %s: %w", product.Name, err)
		}

		s.notifyStockLevel(product)
	}
	return nil
}

// applyBatchDelta keeps the batch decomposition roughly in step with the
// aggregate stock figure. Consumption draws from the earliest-expiring batch
// first; restoration returns to the earliest-expiring batch. The aggregate
// Stock field stays authoritative, batches are advisory.
func applyBatchDelta(p *model.Product, delta int) {
	if len(p.Batches) == 0 || delta == 0 {
		return
	}

	order := make([]int, len(p.Batches))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ba, bb := p.Batches[order[a]], p.Batches[order[b]]
		switch {
		case ba.ExpiresAt == nil:
			return false
		case bb.ExpiresAt == nil:
			return true
		default:
			return ba.ExpiresAt.Before(*bb.ExpiresAt)
		}
	})

	if delta > 0 {
		p.Batches[order[0]].Quantity += delta
		return
	}

	remaining := -delta
	for _, idx := range order {
		if remaining == 0 {
			return
		}
		take := p.Batches[idx].Quantity
		if take > remaining {
			take = remaining
		}
		if take > 0 {
			p.Batches[idx].Quantity -= take
			remaining -= take
		}
	}
	// Backorder remainder lands on the last-expiring batch and goes negative.
	if remaining > 0 {
		p.Batches[order[len(order)-1]].Quantity -= remaining
	}
}

// notifyStockLevel pushes advisory events for depleted or negative stock.
func (s *invoiceService) notifyStockLevel(product *model.Product) {
	if s.hub == nil {
		return
	}

	event := ""
	switch {
	case product.Stock < 0:
		event = ws.EventStockNegative
	case product.Stock <= lowStockFloor:
		event = ws.EventStockLow
	default:
		return
	}

	payload, _ := json.Marshal(ws.Event{
		Event: event,
		Data: map[string]interface{}{
			"tenant_id":  product.TenantID,
			"product_id": product.ID.String(),
			"name":       product.Name,
			"stock":      product.Stock,
		},
	})
	s.hub.Broadcast <- payload
}

// lowStockFloor triggers the stock_low advisory event.
const lowStockFloor = 5
