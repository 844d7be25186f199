package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ecoquote/internal/db"
	"ecoquote/internal/mail"
	"ecoquote/internal/metrics"
	"ecoquote/internal/model"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	TypeQuotationEmail = "quotation:email"
	TypeTokenExpire    = "quotation:token_expire"
	TypeEstimateSync   = "quotation:estimate_sync"
)

// EmailPayload is the task payload for delivering response links
type EmailPayload struct {
	QuotationID string    `json:"quotationId"`
	ApproveURL  string    `json:"approveUrl"`
	RejectURL   string    `json:"rejectUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ExpiryPayload identifies the send whose links are expiring
type ExpiryPayload struct {
	QuotationID string    `json:"quotationId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// QuotationLoader reads quotations for job handlers
type QuotationLoader interface {
	GetQuotationByID(ctx context.Context, id string) (db.Quotation, error)
}

// Publisher broadcasts job outcomes
type Publisher interface {
	PublishQuotation(quotationID string, event map[string]interface{}) error
	PublishStaff(event map[string]interface{}) error
}

// EstimateSyncer pushes a quotation to the accounting system and stores the result
type EstimateSyncer interface {
	ApplyEstimate(ctx context.Context, quotationID string) error
}

type JobServer struct {
	server      *asynq.Server
	client      *asynq.Client
	store       QuotationLoader
	bus         Publisher
	mailer      mail.Mailer
	syncer      EstimateSyncer
	companyName string
	log         *zap.Logger
}

func NewJobServer(redisAddr string, store QuotationLoader, bus Publisher, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server: server,
		client: client,
		store:  store,
		bus:    bus,
		log:    log,
	}, client
}

// SetMailer sets the mailer used for quotation emails
func (js *JobServer) SetMailer(m mail.Mailer, companyName string) {
	js.mailer = m
	js.companyName = companyName
}

// SetEstimateSyncer enables accounting estimate sync jobs
func (js *JobServer) SetEstimateSyncer(s EstimateSyncer) {
	js.syncer = s
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeQuotationEmail, js.handleQuotationEmail)
	mux.HandleFunc(TypeTokenExpire, js.handleTokenExpiry)
	mux.HandleFunc(TypeEstimateSync, js.handleEstimateSync)

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleQuotationEmail(ctx context.Context, t *asynq.Task) error {
	var p EmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	q, err := js.store.GetQuotationByID(ctx, p.QuotationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("quotation %s not found: %w", p.QuotationID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to get quotation: %w", err)
	}

	// A response may already have arrived; the links would be useless
	if model.Status(q.Status).Terminal() {
		return nil
	}
	// A later send replaced the nonce these links carry
	if q.TokenExpiresAt == nil || !q.TokenExpiresAt.Equal(p.ExpiresAt) {
		js.log.Info("Dropping email with superseded links", zap.String("quotation_id", q.ID))
		return nil
	}
	if js.mailer == nil {
		js.log.Warn("No mailer configured, dropping quotation email", zap.String("quotation_id", q.ID))
		return nil
	}

	email := mail.QuotationEmail{
		To:          q.Email,
		Name:        q.Name,
		CompanyName: js.companyName,
		QuotationID: q.ID,
		ServiceType: model.ServiceType(q.ServiceType).Label(),
		Amount:      q.Amount,
		ApproveURL:  p.ApproveURL,
		RejectURL:   p.RejectURL,
		ExpiresAt:   p.ExpiresAt,
	}
	for _, pr := range q.PermitRequests {
		switch {
		case pr.PermitType != nil:
			email.Permits = append(email.Permits, pr.PermitType.Name)
		case pr.CustomName != nil:
			email.Permits = append(email.Permits, *pr.CustomName)
		}
	}

	if err := js.mailer.SendQuotation(ctx, email); err != nil {
		metrics.EmailsSentTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send quotation email: %w", err)
	}
	metrics.EmailsSentTotal.WithLabelValues("sent").Inc()

	_ = js.bus.PublishQuotation(q.ID, map[string]interface{}{
		"type":        "quotation.emailed",
		"quotationId": q.ID,
	})

	js.log.Info("Quotation email delivered", zap.String("quotation_id", q.ID))
	return nil
}

func (js *JobServer) handleTokenExpiry(ctx context.Context, t *asynq.Task) error {
	var p ExpiryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	q, err := js.store.GetQuotationByID(ctx, p.QuotationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get quotation: %w", err)
	}

	// Only notify if still waiting on the links of this send
	if model.Status(q.Status) != model.StatusSent || q.TokenExpiresAt == nil ||
		!q.TokenExpiresAt.Equal(p.ExpiresAt) {
		return nil
	}

	event := map[string]interface{}{
		"type":        "quotation.link_expired",
		"quotationId": q.ID,
		"expiresAt":   p.ExpiresAt.Format(time.RFC3339),
	}
	_ = js.bus.PublishQuotation(q.ID, event)
	_ = js.bus.PublishStaff(event)

	js.log.Info("Response links expired", zap.String("quotation_id", q.ID))
	return nil
}

func (js *JobServer) handleEstimateSync(ctx context.Context, t *asynq.Task) error {
	quotationID := string(t.Payload())

	if js.syncer == nil {
		js.log.Warn("Estimate sync requested but accounting is not configured", zap.String("quotation_id", quotationID))
		return nil
	}

	q, err := js.store.GetQuotationByID(ctx, quotationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("quotation %s not found: %w", quotationID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to get quotation: %w", err)
	}
	// The client already agreed to the current amount
	if model.Status(q.Status).Terminal() {
		metrics.EstimateSyncsTotal.WithLabelValues("skipped").Inc()
		js.log.Info("Skipping estimate sync for answered quotation", zap.String("quotation_id", quotationID))
		return nil
	}

	if err := js.syncer.ApplyEstimate(ctx, quotationID); err != nil {
		if q, gerr := js.store.GetQuotationByID(ctx, quotationID); gerr == nil && model.Status(q.Status).Terminal() {
			metrics.EstimateSyncsTotal.WithLabelValues("skipped").Inc()
			return fmt.Errorf("quotation %s answered during sync: %v: %w", quotationID, err, asynq.SkipRetry)
		}
		metrics.EstimateSyncsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to sync estimate: %w", err)
	}
	metrics.EstimateSyncsTotal.WithLabelValues("synced").Inc()

	js.log.Info("Estimate synced", zap.String("quotation_id", quotationID))
	return nil
}

// Schedule jobs

func ScheduleQuotationEmail(client *asynq.Client, p EmailPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeQuotationEmail, data, asynq.MaxRetry(5))
	_, err = client.Enqueue(task, asynq.Queue("critical"))
	return err
}

func ScheduleTokenExpiry(client *asynq.Client, quotationID string, expiresAt time.Time) error {
	if expiresAt.Before(time.Now()) {
		return nil // Already expired
	}

	data, err := json.Marshal(ExpiryPayload{QuotationID: quotationID, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeTokenExpire, data)
	_, err = client.Enqueue(task, asynq.ProcessAt(expiresAt), asynq.Queue("low"))
	return err
}

func ScheduleEstimateSync(client *asynq.Client, quotationID string) error {
	task := asynq.NewTask(TypeEstimateSync, []byte(quotationID), asynq.MaxRetry(3))
	_, err := client.Enqueue(task, asynq.Queue("default"))
	return err
}
