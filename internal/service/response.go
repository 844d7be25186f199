package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecoquote/internal/auth"
	"ecoquote/internal/db"
	"ecoquote/internal/metrics"
	"ecoquote/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Verification is what a valid response link resolves to
type Verification struct {
	Action      model.Action     `json:"action"`
	QuotationID string           `json:"quotationId"`
	Quotation   *model.Quotation `json:"quotation"`
}

// resolveToken runs every check a response link must pass. The checks are
// ordered so a terminal quotation reports AlreadyResolved even after its
// nonce was consumed or its links expired.
func (s *QuotationService) resolveToken(ctx context.Context, token string) (auth.ResponseToken, db.Quotation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.ResponseToken{}, db.Quotation{}, validationError("token is required")
	}

	parsed, err := s.signer.Parse(token)
	if err != nil {
		return auth.ResponseToken{}, db.Quotation{}, fmt.Errorf("response token: %w", ErrNotFound)
	}

	q, err := s.store.GetQuotationByID(ctx, parsed.QuotationID)
	if err != nil {
		return auth.ResponseToken{}, db.Quotation{}, notFound(err, "quotation")
	}

	if model.Status(q.Status).Terminal() {
		return parsed, q, &AlreadyResolvedError{Status: model.Status(q.Status), Quotation: dbQuotationToModel(q)}
	}

	// Superseded by a later send
	if q.ResponseNonce == nil || *q.ResponseNonce != parsed.Nonce {
		return auth.ResponseToken{}, db.Quotation{}, fmt.Errorf("response token: %w", ErrNotFound)
	}

	now := s.now()
	if now.After(parsed.ExpiresAt) || (q.TokenExpiresAt != nil && now.After(*q.TokenExpiresAt)) {
		return parsed, q, ErrExpired
	}

	return parsed, q, nil
}

// VerifyToken resolves a response link for display. It never writes.
func (s *QuotationService) VerifyToken(ctx context.Context, token string) (*Verification, error) {
	parsed, q, err := s.resolveToken(ctx, token)
	metrics.TokenVerificationsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	return &Verification{
		Action:      parsed.Action,
		QuotationID: q.ID,
		Quotation:   dbQuotationToModel(q),
	}, nil
}

// SubmitResponse applies the decision a response link encodes. The store's
// conditional update guarantees at most one submission per link pair wins;
// every other attempt gets AlreadyResolved.
func (s *QuotationService) SubmitResponse(ctx context.Context, token, remoteAddr string) (model.Status, error) {
	parsed, _, err := s.resolveToken(ctx, token)
	if err != nil {
		metrics.ResponsesTotal.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}

	outcome := parsed.Action.Outcome()
	q, err := s.store.ResolveQuotation(ctx, db.ResolveQuotationParams{
		ResponseID:  ulid.Make().String(),
		QuotationID: parsed.QuotationID,
		Nonce:       parsed.Nonce,
		Action:      string(parsed.Action),
		Status:      string(outcome),
		RemoteAddr:  remoteAddr,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.resolvedError(ctx, parsed.QuotationID)
		metrics.ResponsesTotal.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}
	if err != nil {
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to record response: %w", err)
	}
	metrics.ResponsesTotal.WithLabelValues(string(outcome)).Inc()

	s.publish(q.ID, map[string]interface{}{
		"type":        "quotation.responded",
		"quotationId": q.ID,
		"action":      string(parsed.Action),
		"status":      q.Status,
	}, true)

	s.log.Info("Quotation response recorded",
		zap.String("quotation_id", q.ID),
		zap.String("action", string(parsed.Action)),
		zap.String("remote_addr", remoteAddr),
	)
	return model.Status(q.Status), nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrExpired):
		return "expired"
	}
	return "error"
}
