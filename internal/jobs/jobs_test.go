package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ecoquote/internal/db"
	"ecoquote/internal/mail"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLoader map[string]db.Quotation

func (f fakeLoader) GetQuotationByID(ctx context.Context, id string) (db.Quotation, error) {
	q, ok := f[id]
	if !ok {
		return db.Quotation{}, pgx.ErrNoRows
	}
	return q, nil
}

type recordedEvent struct {
	channel string
	event   map[string]interface{}
}

type fakeBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBus) PublishQuotation(id string, event map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{"quotation:" + id, event})
	return nil
}

func (b *fakeBus) PublishStaff(event map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{"staff:quotations", event})
	return nil
}

type fakeMailer struct {
	sent []mail.QuotationEmail
	err  error
}

func (m *fakeMailer) SendQuotation(ctx context.Context, email mail.QuotationEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type fakeSyncer struct {
	ids     []string
	err     error
	onApply func()
}

func (s *fakeSyncer) ApplyEstimate(ctx context.Context, id string) error {
	s.ids = append(s.ids, id)
	if s.onApply != nil {
		s.onApply()
	}
	return s.err
}

func newTestServer(loader fakeLoader) (*JobServer, *fakeBus) {
	bus := &fakeBus{}
	return &JobServer{store: loader, bus: bus, log: zap.NewNop()}, bus
}

func emailTask(t *testing.T, p EmailPayload) *asynq.Task {
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(TypeQuotationEmail, data)
}

func TestHandleQuotationEmail(t *testing.T) {
	custom := "Wetland survey"
	ptID := "pt-1"
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	loader := fakeLoader{
		"q-1": {
			ID: "q-1", Name: "Dana", Email: "dana@example.com",
			ServiceType: "permit_acquisition", Status: "sent", TokenExpiresAt: &expires,
			PermitRequests: []db.PermitRequest{
				{ID: "pr-1", PermitTypeID: &ptID, PermitType: &db.PermitType{ID: ptID, Name: "Stormwater"}},
				{ID: "pr-2", CustomName: &custom},
			},
		},
	}
	js, bus := newTestServer(loader)
	mailer := &fakeMailer{}
	js.SetMailer(mailer, "Green Fields")

	err := js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{
		QuotationID: "q-1", ApproveURL: "https://x/a", RejectURL: "https://x/r", ExpiresAt: expires,
	}))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	email := mailer.sent[0]
	assert.Equal(t, "dana@example.com", email.To)
	assert.Equal(t, "Permit Acquisition", email.ServiceType)
	assert.Equal(t, []string{"Stormwater", "Wetland survey"}, email.Permits)
	assert.Equal(t, "https://x/a", email.ApproveURL)
	assert.True(t, expires.Equal(email.ExpiresAt))

	require.Len(t, bus.events, 1)
	assert.Equal(t, "quotation.emailed", bus.events[0].event["type"])
}

func TestHandleQuotationEmail_SkipsResolvedAndMissing(t *testing.T) {
	js, bus := newTestServer(fakeLoader{"q-1": {ID: "q-1", Status: "approved"}})
	mailer := &fakeMailer{}
	js.SetMailer(mailer, "Green Fields")

	require.NoError(t, js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{QuotationID: "q-1"})))
	assert.Empty(t, mailer.sent)
	assert.Empty(t, bus.events)

	err := js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{QuotationID: "missing"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleQuotationEmail_SkipsSupersededLinks(t *testing.T) {
	first := time.Now().Add(time.Hour).Truncate(time.Second)
	resent := first.Add(10 * time.Minute)
	js, bus := newTestServer(fakeLoader{"q-1": {ID: "q-1", Status: "sent", TokenExpiresAt: &resent}})
	mailer := &fakeMailer{}
	js.SetMailer(mailer, "Green Fields")

	// A retried job from the first send must not mail its dead links
	err := js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{
		QuotationID: "q-1", ApproveURL: "https://x/old-a", RejectURL: "https://x/old-r", ExpiresAt: first,
	}))
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, bus.events)

	err = js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{
		QuotationID: "q-1", ApproveURL: "https://x/new-a", RejectURL: "https://x/new-r", ExpiresAt: resent,
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "https://x/new-a", mailer.sent[0].ApproveURL)
}

func TestHandleQuotationEmail_MailerErrorRetries(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	js, _ := newTestServer(fakeLoader{"q-1": {ID: "q-1", Status: "sent", TokenExpiresAt: &expires}})
	js.SetMailer(&fakeMailer{err: errors.New("smtp down")}, "Green Fields")

	err := js.handleQuotationEmail(context.Background(), emailTask(t, EmailPayload{QuotationID: "q-1", ExpiresAt: expires}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleTokenExpiry(t *testing.T) {
	expires := time.Now().Add(-time.Minute).Truncate(time.Second)
	later := expires.Add(time.Hour)

	tests := []struct {
		name      string
		quotation db.Quotation
		wantEvent bool
	}{
		{"still sent with same links", db.Quotation{ID: "q-1", Status: "sent", TokenExpiresAt: &expires}, true},
		{"re-sent with new links", db.Quotation{ID: "q-1", Status: "sent", TokenExpiresAt: &later}, false},
		{"already answered", db.Quotation{ID: "q-1", Status: "approved", TokenExpiresAt: &expires}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js, bus := newTestServer(fakeLoader{"q-1": tt.quotation})
			data, _ := json.Marshal(ExpiryPayload{QuotationID: "q-1", ExpiresAt: expires})

			require.NoError(t, js.handleTokenExpiry(context.Background(), asynq.NewTask(TypeTokenExpire, data)))
			if tt.wantEvent {
				require.Len(t, bus.events, 2)
				assert.Equal(t, "quotation.link_expired", bus.events[0].event["type"])
				assert.Equal(t, "staff:quotations", bus.events[1].channel)
			} else {
				assert.Empty(t, bus.events)
			}
		})
	}
}

func TestHandleEstimateSync(t *testing.T) {
	js, _ := newTestServer(fakeLoader{"q-1": {ID: "q-1", Status: "sent"}})
	task := asynq.NewTask(TypeEstimateSync, []byte("q-1"))

	// Without accounting configured the job is a no-op
	require.NoError(t, js.handleEstimateSync(context.Background(), task))

	syncer := &fakeSyncer{}
	js.SetEstimateSyncer(syncer)
	require.NoError(t, js.handleEstimateSync(context.Background(), task))
	assert.Equal(t, []string{"q-1"}, syncer.ids)

	syncer.err = errors.New("quickbooks unavailable")
	err := js.handleEstimateSync(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = js.handleEstimateSync(context.Background(), asynq.NewTask(TypeEstimateSync, []byte("missing")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleEstimateSync_AnsweredQuotation(t *testing.T) {
	loader := fakeLoader{"q-1": {ID: "q-1", Status: "approved"}}
	js, _ := newTestServer(loader)
	syncer := &fakeSyncer{}
	js.SetEstimateSyncer(syncer)
	task := asynq.NewTask(TypeEstimateSync, []byte("q-1"))

	require.NoError(t, js.handleEstimateSync(context.Background(), task))
	assert.Empty(t, syncer.ids)

	// Answered while the estimate was being created: failing again would not help
	loader["q-1"] = db.Quotation{ID: "q-1", Status: "sent"}
	syncer.err = errors.New("quotation already approved")
	syncer.onApply = func() { loader["q-1"] = db.Quotation{ID: "q-1", Status: "approved"} }
	err := js.handleEstimateSync(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, []string{"q-1"}, syncer.ids)
}
