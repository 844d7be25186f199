package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ecoquote/internal/auth"
	"ecoquote/internal/db"
	"ecoquote/internal/jobs"
	"ecoquote/internal/memstore"
	"ecoquote/internal/pubsub"
	"ecoquote/internal/quickbooks"
	"ecoquote/internal/schema"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ QuotationStore = (*db.Queries)(nil)
	_ CatalogStore   = (*db.Queries)(nil)
	_ StaffStore     = (*db.Queries)(nil)
	_ QuotationStore = (*memstore.Store)(nil)
	_ CatalogStore   = (*memstore.Store)(nil)
	_ StaffStore     = (*memstore.Store)(nil)
	_ EventBus       = (*pubsub.Bus)(nil)
	_ Estimator      = (*quickbooks.Client)(nil)
	_ JobClient      = (*AsynqJobClient)(nil)
)

// MockEventBus records published events and replays them per channel
type MockEventBus struct {
	mu     sync.Mutex
	events map[string][]map[string]interface{}
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{events: make(map[string][]map[string]interface{})}
}

func (m *MockEventBus) PublishQuotation(id string, event map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[pubsub.QuotationPrefix+id] = append(m.events[pubsub.QuotationPrefix+id], event)
	return nil
}

func (m *MockEventBus) PublishStaff(event map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[pubsub.StaffChannel] = append(m.events[pubsub.StaffChannel], event)
	return nil
}

func (m *MockEventBus) ReplayQuotation(ctx context.Context, id string, sinceSeq, limit int64) ([]pubsub.StreamEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []pubsub.StreamEvent{}
	for i, ev := range m.events[pubsub.QuotationPrefix+id] {
		seq := int64(i + 1)
		if seq <= sinceSeq {
			continue
		}
		out = append(out, pubsub.StreamEvent{Channel: pubsub.QuotationPrefix + id, Sequence: seq, Event: ev})
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// Types returns the event types published on a channel, in order
func (m *MockEventBus) Types(channel string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, ev := range m.events[channel] {
		types = append(types, ev["type"].(string))
	}
	return types
}

type mockJobClient struct {
	mu     sync.Mutex
	emails []jobs.EmailPayload
	expiry []time.Time
	syncs  []string
}

func (m *mockJobClient) ScheduleQuotationEmail(p jobs.EmailPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, p)
	return nil
}

func (m *mockJobClient) ScheduleTokenExpiry(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = append(m.expiry, at)
	return nil
}

func (m *mockJobClient) ScheduleEstimateSync(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, id)
	return nil
}

type mockEstimator struct {
	input quickbooks.EstimateInput
	err   error

	// during runs while the estimate is being created
	during func()
}

func (m *mockEstimator) SyncEstimate(ctx context.Context, in quickbooks.EstimateInput) (quickbooks.Estimate, error) {
	m.input = in
	if m.during != nil {
		m.during()
	}
	if m.err != nil {
		return quickbooks.Estimate{}, m.err
	}
	var total float64
	for _, l := range in.Lines {
		total += l.Amount
	}
	return quickbooks.Estimate{ID: "est-1", TotalAmt: total}, nil
}

type testEnv struct {
	store   *memstore.Store
	bus     *MockEventBus
	svc     *QuotationService
	catalog *CatalogService
	signer  *auth.ResponseSigner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	bus := NewMockEventBus()
	compiler := schema.NewCompilerWithCache(16)
	signer := auth.NewResponseSigner("response-secret")
	svc := NewQuotationService(store, compiler, signer, bus, QuotationConfig{
		TokenTTL:      time.Hour,
		PublicBaseURL: "https://portal.example.com/",
		CompanyName:   "Green Fields",
	}, zap.NewNop())
	return &testEnv{
		store:   store,
		bus:     bus,
		svc:     svc,
		catalog: NewCatalogService(store, compiler, zap.NewNop()),
		signer:  signer,
	}
}

// seedPermitType creates an agency with one permit type and returns the permit type id
func (e *testEnv) seedPermitType(t *testing.T, name string, price float64) string {
	t.Helper()
	ctx := context.Background()
	agencies, err := e.catalog.ListAgencies(ctx)
	require.NoError(t, err)

	var agencyID string
	if len(agencies) > 0 {
		agencyID = agencies[0].ID
	} else {
		agency, err := e.catalog.CreateAgency(ctx, "State DEQ")
		require.NoError(t, err)
		agencyID = agency.ID
	}

	pt, err := e.catalog.CreatePermitType(ctx, agencyID, PermitTypeInput{
		Name: name, Price: price, TimeEstimate: "4 weeks", ExternalID: "item-" + name,
	})
	require.NoError(t, err)
	return pt.ID
}

func strPtr(s string) *string { return &s }
