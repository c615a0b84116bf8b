package service

import (
	"context"
	"testing"

	"billing/internal/apperr"
	"billing/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, env *testEnv, p model.Product) uuid.UUID {
	t.Helper()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Type == "" {
		p.Type = model.ItemTypeGood
	}
	require.NoError(t, env.productRepo.Create(context.Background(), &p))
	return p.ID
}

func productStock(env *testEnv, id uuid.UUID) int {
	return env.store.products[id].Stock
}

func invoiceRequest(productID uuid.UUID, qty int, total string) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		Items: []InvoiceItemRequest{{
			ProductID: productID.String(),
			Quantity:  qty,
			UnitPrice: "100.00",
		}},
		Subtotal: total,
		Total:    total,
	}
}

func TestCreateInvoiceDecrementsStock(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100), Cost: decimal.NewFromInt(60),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 3, "300.00"), false)
	require.NoError(t, err)
	assert.Equal(t, 7, productStock(env, productID))

	resp, err := env.invoiceSvc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", resp.Number)
	assert.Equal(t, "300.00", resp.Total)
	assert.Equal(t, "300.00", resp.BalanceDue)
	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Empty(t, resp.NCF)
	require.Len(t, resp.Items, 1)
	// Cost is snapshotted from the product at issue time.
	assert.True(t, resp.Items[0].UnitCost.Equal(decimal.NewFromInt(60)))
}

func TestCreateInvoiceInsufficientStockAbortsEverything(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	_, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 20, "2000.00"), false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFailedPrecondition))
	assert.Contains(t, err.Error(), "insufficient stock")

	// Nothing moved: stock, invoices, and the number counter all roll back.
	assert.Equal(t, 10, productStock(env, productID))
	assert.Empty(t, env.store.invoices)

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 2, "200.00"), false)
	require.NoError(t, err)
	resp, err := env.invoiceSvc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", resp.Number, "aborted create must not burn a number")
}

func TestCreateInvoiceBackorderGoesNegative(t *testing.T) {
	env := newTestEnv()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	_, err := env.invoiceSvc.Create(context.Background(), "tenant-a", invoiceRequest(productID, 20, "2000.00"), true)
	require.NoError(t, err)
	assert.Equal(t, -10, productStock(env, productID))
}

func TestCreateInvoiceServiceItemsSkipStock(t *testing.T) {
	env := newTestEnv()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Consulting", Type: model.ItemTypeService,
		Price: decimal.NewFromInt(500),
	})

	_, err := env.invoiceSvc.Create(context.Background(), "tenant-a", invoiceRequest(productID, 8, "4000.00"), false)
	require.NoError(t, err)
	assert.Equal(t, 0, productStock(env, productID))
}

func TestCreateInvoiceWithFiscalNumber(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})
	seedFiscalSequence(t, env, model.FiscalSequence{
		TenantID: "tenant-a", Name: "B01", Type: model.FiscalTypeCreditoFiscal,
		Prefix: "B01", Current: 1, StartNumber: 1, EndNumber: 100, Active: true,
	})

	req := invoiceRequest(productID, 1, "100.00")
	req.NCFType = model.FiscalTypeCreditoFiscal
	id, err := env.invoiceSvc.Create(ctx, "tenant-a", req, false)
	require.NoError(t, err)

	resp, err := env.invoiceSvc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, "B0100000001", resp.NCF)
}

func TestCreateInvoiceExhaustedFiscalAbortsStock(t *testing.T) {
	env := newTestEnv()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})
	fiscalID := seedFiscalSequence(t, env, model.FiscalSequence{
		TenantID: "tenant-a", Name: "B01", Type: model.FiscalTypeCreditoFiscal,
		Prefix: "B01", Current: 101, StartNumber: 1, EndNumber: 100, Active: true,
	})

	req := invoiceRequest(productID, 3, "300.00")
	req.NCFType = model.FiscalTypeCreditoFiscal
	_, err := env.invoiceSvc.Create(context.Background(), "tenant-a", req, false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFailedPrecondition))

	assert.Equal(t, 10, productStock(env, productID))
	assert.Empty(t, env.store.invoices)
	assert.Equal(t, int64(101), env.store.fiscals[fiscalID].Current)
}

func TestUpdateInvoiceAppliesNetDelta(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 3, "300.00"), false)
	require.NoError(t, err)
	require.Equal(t, 7, productStock(env, productID))

	// 3 -> 5 consumes two more.
	err = env.invoiceSvc.Update(ctx, "tenant-a", id, UpdateInvoiceRequest{
		Items: invoiceRequest(productID, 5, "500.00").Items,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 5, productStock(env, productID))

	// 5 -> 1 restores four.
	err = env.invoiceSvc.Update(ctx, "tenant-a", id, UpdateInvoiceRequest{
		Items: invoiceRequest(productID, 1, "100.00").Items,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 9, productStock(env, productID))
}

func TestUpdateInvoiceInsufficientStockRollsBack(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 3, "300.00"), false)
	require.NoError(t, err)

	err = env.invoiceSvc.Update(ctx, "tenant-a", id, UpdateInvoiceRequest{
		Items: invoiceRequest(productID, 20, "2000.00").Items,
	}, false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFailedPrecondition))

	assert.Equal(t, 7, productStock(env, productID))
	resp, err := env.invoiceSvc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)
	assert.Equal(t, "300.00", resp.Total)
}

func TestUpdateInvoiceTotalRecomputesBalance(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 2, "200.00"), false)
	require.NoError(t, err)

	_, err = env.paymentSvc.AddPayment(ctx, "tenant-a", id, AddPaymentRequest{Amount: "50.00", Method: "cash"})
	require.NoError(t, err)

	total := "180.00"
	err = env.invoiceSvc.Update(ctx, "tenant-a", id, UpdateInvoiceRequest{Total: &total}, false)
	require.NoError(t, err)

	resp, err := env.invoiceSvc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, "180.00", resp.Total)
	assert.Equal(t, "130.00", resp.BalanceDue)
}

func TestDeleteInvoiceRestoresStock(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 4, "400.00"), false)
	require.NoError(t, err)
	require.Equal(t, 6, productStock(env, productID))

	require.NoError(t, env.invoiceSvc.Delete(ctx, "tenant-a", id))
	assert.Equal(t, 10, productStock(env, productID))

	_, err = env.invoiceSvc.Get(ctx, "tenant-a", id)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeleteInvoiceWithPaymentsRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 4, "400.00"), false)
	require.NoError(t, err)
	_, err = env.paymentSvc.AddPayment(ctx, "tenant-a", id, AddPaymentRequest{Amount: "100.00", Method: "cash"})
	require.NoError(t, err)

	err = env.invoiceSvc.Delete(ctx, "tenant-a", id)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFailedPrecondition))
	assert.Contains(t, err.Error(), "recorded payments")

	// Invoice and stock both untouched.
	assert.Equal(t, 6, productStock(env, productID))
	_, err = env.invoiceSvc.Get(ctx, "tenant-a", id)
	assert.NoError(t, err)
}

func TestInvoiceTenantIsolation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 10,
		Price: decimal.NewFromInt(100),
	})

	id, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 1, "100.00"), false)
	require.NoError(t, err)

	_, err = env.invoiceSvc.Get(ctx, "tenant-b", id)
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))

	err = env.invoiceSvc.Update(ctx, "tenant-b", id, UpdateInvoiceRequest{}, false)
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))

	err = env.invoiceSvc.Delete(ctx, "tenant-b", id)
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))

	// Cross-tenant product references are rejected too.
	_, err = env.invoiceSvc.Create(ctx, "tenant-b", invoiceRequest(productID, 1, "100.00"), false)
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))
}

func TestGetReceivablesExcludesSettled(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	productID := seedProduct(t, env, model.Product{
		TenantID: "tenant-a", Name: "Widget", Stock: 100,
		Price: decimal.NewFromInt(100),
	})

	openID, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 1, "100.00"), false)
	require.NoError(t, err)
	paidID, err := env.invoiceSvc.Create(ctx, "tenant-a", invoiceRequest(productID, 2, "200.00"), false)
	require.NoError(t, err)
	_, err = env.paymentSvc.AddPayment(ctx, "tenant-a", paidID, AddPaymentRequest{Amount: "200.00", Method: "transfer"})
	require.NoError(t, err)

	receivables, err := env.invoiceSvc.GetReceivables(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, receivables, 1)
	assert.Equal(t, openID, receivables[0].ID)
}
