package service

import (
	"context"
	"errors"
	"fmt"

	"ecoquote/internal/db"
	"ecoquote/internal/model"
	"ecoquote/internal/quickbooks"

	"go.uber.org/zap"
)

// SyncEstimate requests an accounting estimate for a quotation. With a job
// client the sync runs in the background; otherwise it runs inline.
func (s *QuotationService) SyncEstimate(ctx context.Context, quotationID string) error {
	if s.estimator == nil {
		return fmt.Errorf("accounting: %w", ErrNotConfigured)
	}
	if _, err := s.editable(ctx, quotationID); err != nil {
		return err
	}

	if s.jobClient == nil {
		return s.ApplyEstimate(ctx, quotationID)
	}
	if err := s.jobClient.ScheduleEstimateSync(quotationID); err != nil {
		return fmt.Errorf("failed to schedule estimate sync: %w", err)
	}
	s.log.Info("Estimate sync scheduled", zap.String("quotation_id", quotationID))
	return nil
}

// ApplyEstimate creates the estimate in the accounting system and stores its id
// and total. Answered quotations are left untouched.
func (s *QuotationService) ApplyEstimate(ctx context.Context, quotationID string) error {
	if s.estimator == nil {
		return fmt.Errorf("accounting: %w", ErrNotConfigured)
	}
	q, err := s.editable(ctx, quotationID)
	if err != nil {
		return err
	}

	estimate, err := s.estimator.SyncEstimate(ctx, estimateInput(q))
	if err != nil {
		return fmt.Errorf("failed to create estimate: %w", err)
	}

	if err := s.store.SetQuotationEstimate(ctx, q.ID, &estimate.ID, estimate.TotalAmt); err != nil {
		err = s.writeConflict(ctx, q.ID, err, "quotation")
		if errors.Is(err, ErrAlreadyResolved) {
			s.log.Warn("Quotation answered during estimate sync, amount left unchanged",
				zap.String("quotation_id", q.ID),
				zap.String("estimate_id", estimate.ID),
			)
		}
		return err
	}

	s.publish(q.ID, map[string]interface{}{
		"type":        "quotation.estimated",
		"quotationId": q.ID,
		"estimateId":  estimate.ID,
		"amount":      estimate.TotalAmt,
	}, true)

	s.log.Info("Estimate stored",
		zap.String("quotation_id", q.ID),
		zap.String("estimate_id", estimate.ID),
		zap.Float64("amount", estimate.TotalAmt),
	)
	return nil
}

// estimateInput maps permit requests to estimate lines. Catalog permits with
// an accounting item id become priced lines; everything else is description only.
func estimateInput(q db.Quotation) quickbooks.EstimateInput {
	in := quickbooks.EstimateInput{
		CustomerName:  q.Name,
		CustomerEmail: q.Email,
		CompanyName:   q.Company,
		Memo:          fmt.Sprintf("Quotation %s: %s", q.ID, model.ServiceType(q.ServiceType).Label()),
		Lines:         make([]quickbooks.LineItem, 0, len(q.PermitRequests)),
	}
	for _, pr := range q.PermitRequests {
		switch {
		case pr.PermitType != nil && pr.PermitType.ExternalID != "":
			in.Lines = append(in.Lines, quickbooks.LineItem{
				Description: pr.PermitType.Name + " (" + pr.PermitType.AgencyName + ")",
				ItemID:      pr.PermitType.ExternalID,
				Amount:      pr.PermitType.Price,
			})
		case pr.PermitType != nil:
			in.Lines = append(in.Lines, quickbooks.LineItem{
				Description: pr.PermitType.Name + " (" + pr.PermitType.AgencyName + ")",
			})
		case pr.CustomName != nil:
			in.Lines = append(in.Lines, quickbooks.LineItem{Description: "Custom permit: " + *pr.CustomName})
		}
	}
	return in
}
