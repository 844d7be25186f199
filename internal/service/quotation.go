package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"ecoquote/internal/auth"
	"ecoquote/internal/db"
	"ecoquote/internal/jobs"
	"ecoquote/internal/model"
	"ecoquote/internal/pubsub"
	"ecoquote/internal/schema"
	"ecoquote/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// QuotationConfig holds the settings of the quotation workflow
type QuotationConfig struct {
	TokenTTL      time.Duration
	PublicBaseURL string
	CompanyName   string
}

type QuotationService struct {
	store      QuotationStore
	schemaComp *schema.Compiler
	signer     *auth.ResponseSigner
	bus        EventBus
	jobClient  JobClient
	estimator  Estimator
	artifacts  storage.Storage
	cfg        QuotationConfig
	now        func() time.Time
	log        *zap.Logger
}

func NewQuotationService(store QuotationStore, schemaComp *schema.Compiler, signer *auth.ResponseSigner, bus EventBus, cfg QuotationConfig, log *zap.Logger) *QuotationService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	return &QuotationService{
		store:      store,
		schemaComp: schemaComp,
		signer:     signer,
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *QuotationService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// SetEstimator enables accounting estimate sync
func (s *QuotationService) SetEstimator(e Estimator) {
	s.estimator = e
}

// SetArtifacts enables caching of rendered documents
func (s *QuotationService) SetArtifacts(st storage.Storage) {
	s.artifacts = st
}

type PermitRequestInput struct {
	PermitTypeID *string `json:"permitTypeId,omitempty"`
	CustomName   *string `json:"customName,omitempty"`
}

type CreateQuotationInput struct {
	Name           string               `json:"name"`
	Email          string               `json:"email"`
	Phone          string               `json:"phone,omitempty"`
	Company        string               `json:"company,omitempty"`
	ServiceType    model.ServiceType    `json:"serviceType"`
	Description    string               `json:"description"`
	PermitRequests []PermitRequestInput `json:"permitRequests,omitempty"`
}

func (in *CreateQuotationInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Company = strings.TrimSpace(in.Company)
	in.Description = strings.TrimSpace(in.Description)
	for i := range in.PermitRequests {
		in.PermitRequests[i].normalize()
	}
}

func (in *PermitRequestInput) normalize() {
	if in.CustomName != nil {
		name := strings.TrimSpace(*in.CustomName)
		in.CustomName = &name
	}
}

func (s *QuotationService) Create(ctx context.Context, input CreateQuotationInput) (*model.Quotation, error) {
	input.normalize()
	if err := s.schemaComp.Validate(ctx, schema.QuotationCreate, input); err != nil {
		return nil, schemaError(err)
	}

	quotationID := ulid.Make().String()
	params := db.CreateQuotationParams{
		ID:          quotationID,
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Company:     input.Company,
		ServiceType: string(input.ServiceType),
		Description: input.Description,
		Status:      string(model.StatusPending),
	}
	for _, pr := range input.PermitRequests {
		if err := s.checkPermitType(ctx, pr); err != nil {
			return nil, err
		}
		params.PermitRequests = append(params.PermitRequests, db.CreatePermitRequestParams{
			ID:           ulid.Make().String(),
			QuotationID:  quotationID,
			PermitTypeID: pr.PermitTypeID,
			CustomName:   pr.CustomName,
		})
	}

	q, err := s.store.CreateQuotation(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create quotation: %w", err)
	}

	event := map[string]interface{}{
		"type":        "quotation.created",
		"quotationId": q.ID,
		"serviceType": q.ServiceType,
	}
	s.publish(q.ID, event, true)

	s.log.Info("Quotation created", zap.String("quotation_id", q.ID), zap.String("service_type", q.ServiceType))
	return dbQuotationToModel(q), nil
}

func (s *QuotationService) checkPermitType(ctx context.Context, pr PermitRequestInput) error {
	if pr.PermitTypeID == nil {
		return nil
	}
	if _, err := s.store.GetPermitTypeByID(ctx, *pr.PermitTypeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return validationError("unknown permit type %s", *pr.PermitTypeID)
		}
		return fmt.Errorf("failed to get permit type: %w", err)
	}
	return nil
}

func (s *QuotationService) Get(ctx context.Context, id string) (*model.Quotation, error) {
	q, err := s.store.GetQuotationByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "quotation")
	}
	return dbQuotationToModel(q), nil
}

// GetResponse returns the recorded client decision of a quotation
func (s *QuotationService) GetResponse(ctx context.Context, quotationID string) (*model.QuotationResponse, error) {
	r, err := s.store.GetResponseByQuotationID(ctx, quotationID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	return dbResponseToModel(r), nil
}

type ListQuotationsInput struct {
	Status string
	Limit  int
	Offset int
}

func (s *QuotationService) List(ctx context.Context, input ListQuotationsInput) ([]*model.Quotation, error) {
	var status *string
	if input.Status != "" {
		switch model.Status(input.Status) {
		case model.StatusPending, model.StatusSent, model.StatusApproved, model.StatusRejected:
			status = &input.Status
		default:
			return nil, validationError("unknown status %q", input.Status)
		}
	}
	if input.Limit <= 0 {
		input.Limit = defaultListLimit
	}
	if input.Limit > maxListLimit {
		input.Limit = maxListLimit
	}
	if input.Offset < 0 {
		input.Offset = 0
	}

	rows, err := s.store.ListQuotations(ctx, status, input.Limit, input.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotations: %w", err)
	}

	quotations := make([]*model.Quotation, 0, len(rows))
	for _, q := range rows {
		quotations = append(quotations, dbQuotationToModel(q))
	}
	return quotations, nil
}

// StatusCounts returns the number of quotations per status, zero-filled
func (s *QuotationService) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	counts, err := s.store.CountQuotationsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count quotations: %w", err)
	}
	out := map[model.Status]int{
		model.StatusPending:  0,
		model.StatusSent:     0,
		model.StatusApproved: 0,
		model.StatusRejected: 0,
	}
	for status, n := range counts {
		out[model.Status(status)] = n
	}
	return out, nil
}

// editable loads a quotation that staff may still change
func (s *QuotationService) editable(ctx context.Context, id string) (db.Quotation, error) {
	q, err := s.store.GetQuotationByID(ctx, id)
	if err != nil {
		return db.Quotation{}, notFound(err, "quotation")
	}
	if model.Status(q.Status).Terminal() {
		return db.Quotation{}, &AlreadyResolvedError{Status: model.Status(q.Status), Quotation: dbQuotationToModel(q)}
	}
	return q, nil
}

func (s *QuotationService) AddPermitRequest(ctx context.Context, quotationID string, input PermitRequestInput) (*model.Quotation, error) {
	if _, err := s.editable(ctx, quotationID); err != nil {
		return nil, err
	}

	input.normalize()
	if err := s.schemaComp.Validate(ctx, schema.PermitRequest, input); err != nil {
		return nil, schemaError(err)
	}
	if err := s.checkPermitType(ctx, input); err != nil {
		return nil, err
	}

	pr, err := s.store.CreatePermitRequest(ctx, db.CreatePermitRequestParams{
		ID:           ulid.Make().String(),
		QuotationID:  quotationID,
		PermitTypeID: input.PermitTypeID,
		CustomName:   input.CustomName,
	})
	if err != nil {
		return nil, s.writeConflict(ctx, quotationID, err, "quotation")
	}

	s.publish(quotationID, map[string]interface{}{
		"type":            "quotation.updated",
		"quotationId":     quotationID,
		"permitRequestId": pr.ID,
		"change":          "permit_request.added",
	}, false)

	return s.Get(ctx, quotationID)
}

func (s *QuotationService) RemovePermitRequest(ctx context.Context, quotationID, requestID string) (*model.Quotation, error) {
	if _, err := s.editable(ctx, quotationID); err != nil {
		return nil, err
	}

	if err := s.store.DeletePermitRequest(ctx, quotationID, requestID); err != nil {
		return nil, s.writeConflict(ctx, quotationID, err, "permit request")
	}

	s.publish(quotationID, map[string]interface{}{
		"type":            "quotation.updated",
		"quotationId":     quotationID,
		"permitRequestId": requestID,
		"change":          "permit_request.removed",
	}, false)

	return s.Get(ctx, quotationID)
}

// SetAmount records a manually estimated amount
func (s *QuotationService) SetAmount(ctx context.Context, quotationID string, amount float64) (*model.Quotation, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, validationError("amount must be a non-negative number")
	}
	if _, err := s.editable(ctx, quotationID); err != nil {
		return nil, err
	}

	if err := s.store.SetQuotationEstimate(ctx, quotationID, nil, amount); err != nil {
		return nil, s.writeConflict(ctx, quotationID, err, "quotation")
	}

	s.publish(quotationID, map[string]interface{}{
		"type":        "quotation.updated",
		"quotationId": quotationID,
		"change":      "amount",
		"amount":      amount,
	}, false)

	return s.Get(ctx, quotationID)
}

// SendResult carries the response links of a send. Tokens stay out of JSON;
// the links already contain them.
type SendResult struct {
	Quotation    *model.Quotation `json:"quotation"`
	ApproveURL   string           `json:"approveUrl"`
	RejectURL    string           `json:"rejectUrl"`
	ExpiresAt    string           `json:"expiresAt"`
	ApproveToken string           `json:"-"`
	RejectToken  string           `json:"-"`
}

// ResponseLink builds the client-facing URL for a response token
func ResponseLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/quotation-response?token=" + url.QueryEscape(token)
}

// Send issues a fresh approve/reject token pair and marks the quotation sent.
// Links from earlier sends stop working because they carry the old nonce.
func (s *QuotationService) Send(ctx context.Context, quotationID string) (*SendResult, error) {
	if _, err := s.editable(ctx, quotationID); err != nil {
		return nil, err
	}

	nonce := uuid.NewString()
	// Stored and signed at second precision so both sides compare equal
	expiresAt := s.now().Add(s.cfg.TokenTTL).Truncate(time.Second).UTC()

	approveToken, err := s.signer.Issue(quotationID, model.ActionApprove, nonce, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign approve token: %w", err)
	}
	rejectToken, err := s.signer.Issue(quotationID, model.ActionReject, nonce, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign reject token: %w", err)
	}

	q, err := s.store.MarkQuotationSent(ctx, quotationID, nonce, expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Resolved between the check above and the update
		return nil, s.resolvedError(ctx, quotationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark quotation sent: %w", err)
	}

	result := &SendResult{
		Quotation:    dbQuotationToModel(q),
		ApproveURL:   ResponseLink(s.cfg.PublicBaseURL, approveToken),
		RejectURL:    ResponseLink(s.cfg.PublicBaseURL, rejectToken),
		ExpiresAt:    expiresAt.Format(timeLayout),
		ApproveToken: approveToken,
		RejectToken:  rejectToken,
	}

	if s.jobClient != nil {
		if err := s.jobClient.ScheduleQuotationEmail(jobs.EmailPayload{
			QuotationID: quotationID,
			ApproveURL:  result.ApproveURL,
			RejectURL:   result.RejectURL,
			ExpiresAt:   expiresAt,
		}); err != nil {
			s.log.Warn("Failed to schedule quotation email", zap.String("quotation_id", quotationID), zap.Error(err))
		}
		if err := s.jobClient.ScheduleTokenExpiry(quotationID, expiresAt); err != nil {
			s.log.Warn("Failed to schedule link expiry", zap.String("quotation_id", quotationID), zap.Error(err))
		}
	}

	s.publish(quotationID, map[string]interface{}{
		"type":        "quotation.sent",
		"quotationId": quotationID,
		"expiresAt":   result.ExpiresAt,
	}, true)

	s.log.Info("Quotation sent", zap.String("quotation_id", quotationID), zap.Time("expires_at", expiresAt))
	return result, nil
}

// Events replays the event stream of a quotation
func (s *QuotationService) Events(ctx context.Context, quotationID string, sinceSeq, limit int64) ([]pubsub.StreamEvent, error) {
	if _, err := s.store.GetQuotationByID(ctx, quotationID); err != nil {
		return nil, notFound(err, "quotation")
	}
	if s.bus == nil {
		return []pubsub.StreamEvent{}, nil
	}
	events, err := s.bus.ReplayQuotation(ctx, quotationID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to replay events: %w", err)
	}
	return events, nil
}

// resolvedError explains why a conditional update matched no row: either the
// quotation reached a terminal status or its nonce was replaced by a later send.
func (s *QuotationService) resolvedError(ctx context.Context, quotationID string) error {
	q, err := s.store.GetQuotationByID(ctx, quotationID)
	if err != nil {
		return notFound(err, "quotation")
	}
	if !model.Status(q.Status).Terminal() {
		return fmt.Errorf("response token: %w", ErrNotFound)
	}
	return &AlreadyResolvedError{Status: model.Status(q.Status), Quotation: dbQuotationToModel(q)}
}

// writeConflict explains an edit that matched no row. A quotation answered
// after the editable check reports AlreadyResolved; otherwise the target is missing.
func (s *QuotationService) writeConflict(ctx context.Context, quotationID string, err error, what string) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update quotation: %w", err)
	}
	q, gerr := s.store.GetQuotationByID(ctx, quotationID)
	if gerr != nil {
		return notFound(gerr, "quotation")
	}
	if model.Status(q.Status).Terminal() {
		return &AlreadyResolvedError{Status: model.Status(q.Status), Quotation: dbQuotationToModel(q)}
	}
	return notFound(err, what)
}

func (s *QuotationService) publish(quotationID string, event map[string]interface{}, staff bool) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishQuotation(quotationID, event); err != nil {
		s.log.Warn("Failed to publish quotation event", zap.String("quotation_id", quotationID), zap.Error(err))
	}
	if staff {
		if err := s.bus.PublishStaff(event); err != nil {
			s.log.Warn("Failed to publish staff event", zap.String("quotation_id", quotationID), zap.Error(err))
		}
	}
}
