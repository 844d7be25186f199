package service

import (
	"context"
	"time"

	"ecoquote/internal/db"
	"ecoquote/internal/pubsub"
	"ecoquote/internal/quickbooks"
)

// QuotationStore is the persistence used by the quotation workflow.
// *db.Queries implements it.
type QuotationStore interface {
	CreateQuotation(ctx context.Context, params db.CreateQuotationParams) (db.Quotation, error)
	GetQuotationByID(ctx context.Context, id string) (db.Quotation, error)
	ListQuotations(ctx context.Context, status *string, limit, offset int) ([]db.Quotation, error)
	CountQuotationsByStatus(ctx context.Context) (map[string]int, error)
	CreatePermitRequest(ctx context.Context, params db.CreatePermitRequestParams) (db.PermitRequest, error)
	DeletePermitRequest(ctx context.Context, quotationID, id string) error
	MarkQuotationSent(ctx context.Context, id, nonce string, expiresAt time.Time) (db.Quotation, error)
	ResolveQuotation(ctx context.Context, params db.ResolveQuotationParams) (db.Quotation, error)
	SetQuotationEstimate(ctx context.Context, id string, estimateID *string, amount float64) error
	GetResponseByQuotationID(ctx context.Context, quotationID string) (db.QuotationResponse, error)
	GetPermitTypeByID(ctx context.Context, id string) (db.PermitType, error)
}

// CatalogStore is the persistence for agencies and permit types
type CatalogStore interface {
	CreateAgency(ctx context.Context, id, name string) (db.Agency, error)
	GetAgencyByID(ctx context.Context, id string) (db.Agency, error)
	ListAgencies(ctx context.Context) ([]db.Agency, error)
	CreatePermitType(ctx context.Context, params db.CreatePermitTypeParams) (db.PermitType, error)
	UpdatePermitType(ctx context.Context, params db.UpdatePermitTypeParams) (db.PermitType, error)
	GetPermitTypeByID(ctx context.Context, id string) (db.PermitType, error)
	ListPermitTypes(ctx context.Context, agencyID *string) ([]db.PermitType, error)
}

// StaffStore is the persistence for staff accounts
type StaffStore interface {
	CreateStaff(ctx context.Context, params db.CreateStaffParams) (db.Staff, error)
	GetStaffByEmail(ctx context.Context, email string) (db.Staff, error)
	GetStaffByID(ctx context.Context, id string) (db.Staff, error)
	ListStaff(ctx context.Context) ([]db.Staff, error)
}

type EventBus interface {
	PublishQuotation(quotationID string, event map[string]interface{}) error
	PublishStaff(event map[string]interface{}) error
	ReplayQuotation(ctx context.Context, quotationID string, sinceSeq, limit int64) ([]pubsub.StreamEvent, error)
}

// Estimator creates accounting estimates
type Estimator interface {
	SyncEstimate(ctx context.Context, in quickbooks.EstimateInput) (quickbooks.Estimate, error)
}
