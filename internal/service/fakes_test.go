package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// memStore is a shared in-memory backing store for the fake repositories.
// The fake transaction manager serializes access and snapshots the maps so
// a failed transaction rolls every write back, mirroring the atomicity the
// real store provides.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]model.Product
	invoices map[uuid.UUID]model.Invoice
	counters map[string]model.SequenceCounter
	fiscals  map[uuid.UUID]model.FiscalSequence
	quotes   map[uuid.UUID]model.Quote
	clients  map[uuid.UUID]model.Client
}

func newMemStore() *memStore {
	return &memStore{
		products: map[uuid.UUID]model.Product{},
		invoices: map[uuid.UUID]model.Invoice{},
		counters: map[string]model.SequenceCounter{},
		fiscals:  map[uuid.UUID]model.FiscalSequence{},
		quotes:   map[uuid.UUID]model.Quote{},
		clients:  map[uuid.UUID]model.Client{},
	}
}

func counterKey(tenantID, sequenceType string) string {
	return tenantID + "|" + sequenceType
}

func cloneInvoice(inv model.Invoice) model.Invoice {
	out := inv
	out.Items = append(model.LineItems{}, inv.Items...)
	out.Payments = append(model.Payments{}, inv.Payments...)
	return out
}

func cloneProduct(p model.Product) model.Product {
	out := p
	out.Batches = append(model.Batches{}, p.Batches...)
	return out
}

type storeSnapshot struct {
	products map[uuid.UUID]model.Product
	invoices map[uuid.UUID]model.Invoice
	counters map[string]model.SequenceCounter
	fiscals  map[uuid.UUID]model.FiscalSequence
	quotes   map[uuid.UUID]model.Quote
	clients  map[uuid.UUID]model.Client
}

func (s *memStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		products: map[uuid.UUID]model.Product{},
		invoices: map[uuid.UUID]model.Invoice{},
		counters: map[string]model.SequenceCounter{},
		fiscals:  map[uuid.UUID]model.FiscalSequence{},
		quotes:   map[uuid.UUID]model.Quote{},
		clients:  map[uuid.UUID]model.Client{},
	}
	for k, v := range s.products {
		snap.products[k] = cloneProduct(v)
	}
	for k, v := range s.invoices {
		snap.invoices[k] = cloneInvoice(v)
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	for k, v := range s.fiscals {
		snap.fiscals[k] = v
	}
	for k, v := range s.quotes {
		snap.quotes[k] = v
	}
	for k, v := range s.clients {
		snap.clients[k] = v
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.products = snap.products
	s.invoices = snap.invoices
	s.counters = snap.counters
	s.fiscals = snap.fiscals
	s.quotes = snap.quotes
	s.clients = snap.clients
}

type fakeTxKey struct{}

type fakeTxManager struct {
	store *memStore
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snap := m.store.snapshot()
	err := fn(context.WithValue(ctx, fakeTxKey{}, true))
	if err != nil {
		m.store.restore(snap)
	}
	return err
}

// --- fake repositories ---

type fakeSequenceRepo struct{ store *memStore }

func (r *fakeSequenceRepo) FindForUpdate(_ context.Context, tenantID, sequenceType string) (*model.SequenceCounter, error) {
	c, ok := r.store.counters[counterKey(tenantID, sequenceType)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := c
	return &out, nil
}

func (r *fakeSequenceRepo) Create(_ context.Context, counter *model.SequenceCounter) error {
	if counter.ID == uuid.Nil {
		counter.ID = uuid.New()
	}
	r.store.counters[counterKey(counter.TenantID, counter.SequenceType)] = *counter
	return nil
}

func (r *fakeSequenceRepo) Save(_ context.Context, counter *model.SequenceCounter) error {
	r.store.counters[counterKey(counter.TenantID, counter.SequenceType)] = *counter
	return nil
}

type fakeFiscalRepo struct{ store *memStore }

func (r *fakeFiscalRepo) Create(_ context.Context, seq *model.FiscalSequence) error {
	if seq.ID == uuid.Nil {
		seq.ID = uuid.New()
	}
	r.store.fiscals[seq.ID] = *seq
	return nil
}

func (r *fakeFiscalRepo) Save(_ context.Context, seq *model.FiscalSequence) error {
	r.store.fiscals[seq.ID] = *seq
	return nil
}

func (r *fakeFiscalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.FiscalSequence, error) {
	seq, ok := r.store.fiscals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := seq
	return &out, nil
}

func (r *fakeFiscalRepo) FindActiveForUpdate(_ context.Context, tenantID, fiscalType string) (*model.FiscalSequence, error) {
	for _, seq := range r.store.fiscals {
		if seq.TenantID == tenantID && seq.Type == fiscalType && seq.Active {
			out := seq
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeFiscalRepo) ListActive(_ context.Context, tenantID string) ([]model.FiscalSequence, error) {
	var out []model.FiscalSequence
	for _, seq := range r.store.fiscals {
		if seq.TenantID == tenantID && seq.Active {
			out = append(out, seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeFiscalRepo) ListAllActive(_ context.Context) ([]model.FiscalSequence, error) {
	var out []model.FiscalSequence
	for _, seq := range r.store.fiscals {
		if seq.Active {
			out = append(out, seq)
		}
	}
	return out, nil
}

type fakeProductRepo struct{ store *memStore }

func (r *fakeProductRepo) Create(_ context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	r.store.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r *fakeProductRepo) Save(_ context.Context, product *model.Product) error {
	r.store.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r *fakeProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.store.products, id)
	return nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.store.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (r *fakeProductRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeProductRepo) List(_ context.Context, tenantID string, page, limit int, search string) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range r.store.products {
		if p.TenantID != tenantID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	return out, int64(len(out)), nil
}

type fakeInvoiceRepo struct{ store *memStore }

func (r *fakeInvoiceRepo) Create(_ context.Context, invoice *model.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	r.store.invoices[invoice.ID] = cloneInvoice(*invoice)
	return nil
}

func (r *fakeInvoiceRepo) Save(_ context.Context, invoice *model.Invoice) error {
	r.store.invoices[invoice.ID] = cloneInvoice(*invoice)
	return nil
}

func (r *fakeInvoiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.store.invoices, id)
	return nil
}

func (r *fakeInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, ok := r.store.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := cloneInvoice(inv)
	return &out, nil
}

func (r *fakeInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeInvoiceRepo) List(_ context.Context, tenantID string, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error) {
	var out []model.Invoice
	for _, inv := range r.store.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	return out, int64(len(out)), nil
}

func (r *fakeInvoiceRepo) ListReceivables(_ context.Context, tenantID string) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range r.store.invoices {
		if inv.TenantID == tenantID && inv.BalanceDue.IsPositive() {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

type fakeQuoteRepo struct{ store *memStore }

func (r *fakeQuoteRepo) Create(_ context.Context, quote *model.Quote) error {
	if quote.ID == uuid.Nil {
		quote.ID = uuid.New()
	}
	r.store.quotes[quote.ID] = *quote
	return nil
}

func (r *fakeQuoteRepo) Save(_ context.Context, quote *model.Quote) error {
	r.store.quotes[quote.ID] = *quote
	return nil
}

func (r *fakeQuoteRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.store.quotes, id)
	return nil
}

func (r *fakeQuoteRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Quote, error) {
	q, ok := r.store.quotes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := q
	return &out, nil
}

func (r *fakeQuoteRepo) List(_ context.Context, tenantID string, page, limit int) ([]model.Quote, int64, error) {
	var out []model.Quote
	for _, q := range r.store.quotes {
		if q.TenantID == tenantID {
			out = append(out, q)
		}
	}
	return out, int64(len(out)), nil
}

// --- test environment ---

type testEnv struct {
	store       *memStore
	txManager   repository.TransactionManager
	sequenceSvc SequenceService
	fiscalSvc   FiscalService
	invoiceSvc  InvoiceService
	paymentSvc  PaymentService
	productSvc  ProductService
	quoteSvc    QuoteService
	invoiceRepo *fakeInvoiceRepo
	productRepo *fakeProductRepo
	fiscalRepo  *fakeFiscalRepo
}

func newTestEnv() *testEnv {
	store := newMemStore()
	txManager := &fakeTxManager{store: store}
	sequenceRepo := &fakeSequenceRepo{store: store}
	fiscalRepo := &fakeFiscalRepo{store: store}
	productRepo := &fakeProductRepo{store: store}
	invoiceRepo := &fakeInvoiceRepo{store: store}
	quoteRepo := &fakeQuoteRepo{store: store}

	nop := zerolog.Nop()
	sequenceSvc := NewSequenceService(sequenceRepo, txManager)
	fiscalSvc := NewFiscalService(fiscalRepo, txManager, nil, nop)

	return &testEnv{
		store:       store,
		txManager:   txManager,
		sequenceSvc: sequenceSvc,
		fiscalSvc:   fiscalSvc,
		invoiceSvc:  NewInvoiceService(invoiceRepo, productRepo, sequenceSvc, fiscalSvc, txManager, nil, nop),
		paymentSvc:  NewPaymentService(invoiceRepo, txManager, nop),
		productSvc:  NewProductService(productRepo, txManager),
		quoteSvc:    NewQuoteService(quoteRepo, sequenceSvc, txManager),
		invoiceRepo: invoiceRepo,
		productRepo: productRepo,
		fiscalRepo:  fiscalRepo,
	}
}
