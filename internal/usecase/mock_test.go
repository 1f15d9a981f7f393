//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/adapter"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/db/memory"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var errBoom = errors.New("boom")

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu sync.Mutex

	AuthenticateFunc         func(ctx context.Context) (model.GatewayToken, error)
	RegisterCallbackFunc     func(ctx context.Context, token, callbackURL string) (string, error)
	SubmitOrderFunc          func(ctx context.Context, token string, order adapter.OrderRequest) (adapter.OrderResponse, error)
	GetTransactionStatusFunc func(ctx context.Context, token, trackingID string) (adapter.TransactionStatus, error)

	Orders       []adapter.OrderRequest
	StatusCalls  int
	AuthCalls    int
	RegisterURLs []string
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) Authenticate(ctx context.Context) (model.GatewayToken, error) {
	m.mu.Lock()
	m.AuthCalls++
	m.mu.Unlock()
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return model.GatewayToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *MockPaymentGateway) RegisterCallback(ctx context.Context, token, callbackURL string) (string, error) {
	m.mu.Lock()
	m.RegisterURLs = append(m.RegisterURLs, callbackURL)
	m.mu.Unlock()
	if m.RegisterCallbackFunc != nil {
		return m.RegisterCallbackFunc(ctx, token, callbackURL)
	}
	return "ipn-1", nil
}

func (m *MockPaymentGateway) SubmitOrder(ctx context.Context, token string, order adapter.OrderRequest) (adapter.OrderResponse, error) {
	m.mu.Lock()
	m.Orders = append(m.Orders, order)
	m.mu.Unlock()
	if m.SubmitOrderFunc != nil {
		return m.SubmitOrderFunc(ctx, token, order)
	}
	return adapter.OrderResponse{
		OrderTrackingID:   "trk-" + order.ID,
		MerchantReference: order.ID,
		RedirectURL:       "https://pay.example.test/" + order.ID,
	}, nil
}

func (m *MockPaymentGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (adapter.TransactionStatus, error) {
	m.mu.Lock()
	m.StatusCalls++
	m.mu.Unlock()
	if m.GetTransactionStatusFunc != nil {
		return m.GetTransactionStatusFunc(ctx, token, trackingID)
	}
	return adapter.TransactionStatus{StatusCode: 1, Description: "Completed", ConfirmationCode: "CONF-1"}, nil
}

// ---- Mock Alerter ----

type MockAlerter struct {
	mu      sync.Mutex
	Reports []error
}

func (m *MockAlerter) Report(_ context.Context, err error, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, err)
}

// =============================
// Repositories
// =============================

// ---- Mock PendingPaymentStore ----

type MockPendingStore struct {
	mu      sync.Mutex
	records map[string]*model.PendingPayment

	SaveFunc  func(ctx context.Context, sessionID string, p *model.PendingPayment) error
	GetFunc   func(ctx context.Context, sessionID string) (*model.PendingPayment, error)
	ClearFunc func(ctx context.Context, sessionID string) error
}

var _ repository.PendingPaymentStore = (*MockPendingStore)(nil)

func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{records: make(map[string]*model.PendingPayment)}
}

func (m *MockPendingStore) Save(ctx context.Context, sessionID string, p *model.PendingPayment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, sessionID, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.records[sessionID] = &cp
	return nil
}

func (m *MockPendingStore) Get(ctx context.Context, sessionID string) (*model.PendingPayment, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockPendingStore) Clear(ctx context.Context, sessionID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// ---- Mock CallbackResultCache ----

type MockResultCache struct {
	mu      sync.Mutex
	results map[string]*model.CallbackResult
	Puts    int
}

var _ repository.CallbackResultCache = (*MockResultCache)(nil)

func NewMockResultCache() *MockResultCache {
	return &MockResultCache{results: make(map[string]*model.CallbackResult)}
}

func (m *MockResultCache) Get(_ context.Context, sessionID, trackingID string) (*model.CallbackResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[sessionID+"/"+trackingID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockResultCache) PutSuccess(_ context.Context, sessionID, trackingID string, r *model.CallbackResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	cp := *r
	m.results[sessionID+"/"+trackingID] = &cp
	return nil
}

// ---- Mock ClaimSet ----

type MockClaimSet struct {
	mu      sync.Mutex
	held    map[string]bool
	Claimed []string
}

var _ repository.ClaimSet = (*MockClaimSet)(nil)

func NewMockClaimSet() *MockClaimSet { return &MockClaimSet{held: make(map[string]bool)} }

func (m *MockClaimSet) Claim(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return func() {}, false, nil
	}
	m.held[key] = true
	m.Claimed = append(m.Claimed, key)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, true, nil
}

// Hold marks key as owned by someone else.
func (m *MockClaimSet) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// ---- Failing DocumentStore ----

// FlakyDocumentStore wraps the in-memory store and lets a test fail chosen calls.
type FlakyDocumentStore struct {
	*memory.DocumentStore

	MergeUpdateErr error
	CreateErr      error
	GetErr         error
	CompareHook    func()
}

var _ repository.DocumentStore = (*FlakyDocumentStore)(nil)

func NewFlakyDocumentStore() *FlakyDocumentStore {
	return &FlakyDocumentStore{DocumentStore: memory.NewDocumentStore()}
}

func (f *FlakyDocumentStore) MergeUpdate(ctx context.Context, path string, partial repository.Document) error {
	if f.MergeUpdateErr != nil {
		return f.MergeUpdateErr
	}
	return f.DocumentStore.MergeUpdate(ctx, path, partial)
}

func (f *FlakyDocumentStore) Create(ctx context.Context, path string, doc repository.Document) (bool, error) {
	if f.CreateErr != nil {
		return false, f.CreateErr
	}
	return f.DocumentStore.Create(ctx, path, doc)
}

func (f *FlakyDocumentStore) Get(ctx context.Context, path string) (repository.Document, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.DocumentStore.Get(ctx, path)
}

func (f *FlakyDocumentStore) CompareAndMerge(ctx context.Context, path, field string, expected any, partial repository.Document) (bool, error) {
	if f.CompareHook != nil {
		f.CompareHook()
	}
	return f.DocumentStore.CompareAndMerge(ctx, path, field, expected, partial)
}
