package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const quotationColumns = `id, name, email, phone, company, service_type, description, status,
	amount, estimate_id, response_nonce, token_expires_at, responded_at, created_at, updated_at`

// Quotation represents a quotation row with its permit requests
type Quotation struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Company        string
	ServiceType    string
	Description    string
	Status         string
	Amount         *float64
	EstimateID     *string
	ResponseNonce  *string
	TokenExpiresAt *time.Time
	RespondedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PermitRequests []PermitRequest
}

// PermitRequest represents a permit_requests row joined with its catalog entry
type PermitRequest struct {
	ID           string
	QuotationID  string
	PermitTypeID *string
	CustomName   *string
	CreatedAt    time.Time
	PermitType   *PermitType
}

func scanQuotation(row rowScanner) (Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.Name, &q.Email, &q.Phone, &q.Company, &q.ServiceType, &q.Description, &q.Status,
		&q.Amount, &q.EstimateID, &q.ResponseNonce, &q.TokenExpiresAt, &q.RespondedAt,
		&q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

type CreateQuotationParams struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Company        string
	ServiceType    string
	Description    string
	Status         string
	PermitRequests []CreatePermitRequestParams
}

type CreatePermitRequestParams struct {
	ID           string
	QuotationID  string
	PermitTypeID *string
	CustomName   *string
}

// CreateQuotation inserts a quotation and its permit requests in one transaction
func (q *Queries) CreateQuotation(ctx context.Context, params CreateQuotationParams) (Quotation, error) {
	tx, err := q.Pool.Begin(ctx)
	if err != nil {
		return Quotation{}, err
	}
	defer tx.Rollback(ctx)

	quotation, err := scanQuotation(tx.QueryRow(ctx,
		`INSERT INTO quotations (id, name, email, phone, company, service_type, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+quotationColumns,
		params.ID, params.Name, params.Email, params.Phone, params.Company,
		params.ServiceType, params.Description, params.Status,
	))
	if err != nil {
		return Quotation{}, err
	}

	for _, pr := range params.PermitRequests {
		if _, err := tx.Exec(ctx,
			`INSERT INTO permit_requests (id, quotation_id, permit_type_id, custom_name)
			VALUES ($1, $2, $3, $4)`,
			pr.ID, quotation.ID, pr.PermitTypeID, pr.CustomName,
		); err != nil {
			return Quotation{}, fmt.Errorf("insert permit request: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Quotation{}, err
	}
	return q.GetQuotationByID(ctx, quotation.ID)
}

// GetQuotationByID loads a quotation with its permit requests
func (q *Queries) GetQuotationByID(ctx context.Context, id string) (Quotation, error) {
	quotation, err := scanQuotation(q.Pool.QueryRow(ctx,
		"SELECT "+quotationColumns+" FROM quotations WHERE id = $1",
		id,
	))
	if err != nil {
		return Quotation{}, err
	}

	quotation.PermitRequests, err = q.ListPermitRequests(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	return quotation, nil
}

func (q *Queries) ListQuotations(ctx context.Context, status *string, limit, offset int) ([]Quotation, error) {
	var rows pgx.Rows
	var err error

	if status != nil {
		rows, err = q.Pool.Query(ctx,
			`SELECT `+quotationColumns+`
			FROM quotations
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			*status, limit, offset,
		)
	} else {
		rows, err = q.Pool.Query(ctx,
			`SELECT `+quotationColumns+`
			FROM quotations
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotations := make([]Quotation, 0)
	for rows.Next() {
		quotation, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		quotations = append(quotations, quotation)
	}
	return quotations, rows.Err()
}

// CountQuotationsByStatus returns the number of quotations per status
func (q *Queries) CountQuotationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := q.Pool.Query(ctx, "SELECT status, COUNT(*) FROM quotations GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (q *Queries) ListPermitRequests(ctx context.Context, quotationID string) ([]PermitRequest, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT pr.id, pr.quotation_id, pr.permit_type_id, pr.custom_name, pr.created_at,
			pt.agency_id, a.name, pt.name, pt.price, pt.time_estimate, pt.external_id
		FROM permit_requests pr
		LEFT JOIN permit_types pt ON pt.id = pr.permit_type_id
		LEFT JOIN agencies a ON a.id = pt.agency_id
		WHERE pr.quotation_id = $1
		ORDER BY pr.created_at ASC, pr.id ASC`,
		quotationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]PermitRequest, 0)
	for rows.Next() {
		var pr PermitRequest
		var agencyID, agencyName, name, timeEstimate, externalID *string
		var price *float64
		if err := rows.Scan(
			&pr.ID, &pr.QuotationID, &pr.PermitTypeID, &pr.CustomName, &pr.CreatedAt,
			&agencyID, &agencyName, &name, &price, &timeEstimate, &externalID,
		); err != nil {
			return nil, err
		}
		if pr.PermitTypeID != nil && name != nil {
			pr.PermitType = &PermitType{
				ID:           *pr.PermitTypeID,
				AgencyID:     deref(agencyID),
				AgencyName:   deref(agencyName),
				Name:         *name,
				TimeEstimate: deref(timeEstimate),
				ExternalID:   deref(externalID),
			}
			if price != nil {
				pr.PermitType.Price = *price
			}
		}
		requests = append(requests, pr)
	}
	return requests, rows.Err()
}

// touchOpenQuotation bumps updated_at of a pending or sent quotation and holds
// its row lock until tx ends. pgx.ErrNoRows when it is missing or terminal.
func touchOpenQuotation(ctx context.Context, tx pgx.Tx, id string) error {
	var locked string
	return tx.QueryRow(ctx,
		`UPDATE quotations SET updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'sent')
		RETURNING id`,
		id,
	).Scan(&locked)
}

// CreatePermitRequest adds a permit request to an open quotation. pgx.ErrNoRows
// when the quotation is missing or already answered.
func (q *Queries) CreatePermitRequest(ctx context.Context, params CreatePermitRequestParams) (PermitRequest, error) {
	tx, err := q.Pool.Begin(ctx)
	if err != nil {
		return PermitRequest{}, err
	}
	defer tx.Rollback(ctx)

	if err := touchOpenQuotation(ctx, tx, params.QuotationID); err != nil {
		return PermitRequest{}, err
	}

	var pr PermitRequest
	err = tx.QueryRow(ctx,
		`INSERT INTO permit_requests (id, quotation_id, permit_type_id, custom_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, quotation_id, permit_type_id, custom_name, created_at`,
		params.ID, params.QuotationID, params.PermitTypeID, params.CustomName,
	).Scan(&pr.ID, &pr.QuotationID, &pr.PermitTypeID, &pr.CustomName, &pr.CreatedAt)
	if err != nil {
		return PermitRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PermitRequest{}, err
	}
	return pr, nil
}

// DeletePermitRequest removes a permit request from an open quotation.
// pgx.ErrNoRows when the request does not exist or the quotation is missing or answered.
func (q *Queries) DeletePermitRequest(ctx context.Context, quotationID, id string) error {
	tx, err := q.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchOpenQuotation(ctx, tx, quotationID); err != nil {
		return err
	}

	result, err := tx.Exec(ctx,
		"DELETE FROM permit_requests WHERE id = $1 AND quotation_id = $2",
		id, quotationID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

// MarkQuotationSent moves a non-terminal quotation to sent and replaces its
// response nonce. pgx.ErrNoRows when the quotation is missing or terminal.
func (q *Queries) MarkQuotationSent(ctx context.Context, id, nonce string, expiresAt time.Time) (Quotation, error) {
	quotation, err := scanQuotation(q.Pool.QueryRow(ctx,
		`UPDATE quotations
		SET status = 'sent', response_nonce = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'sent')
		RETURNING `+quotationColumns,
		id, nonce, expiresAt,
	))
	if err != nil {
		return Quotation{}, err
	}
	quotation.PermitRequests, err = q.ListPermitRequests(ctx, id)
	return quotation, err
}

type ResolveQuotationParams struct {
	ResponseID  string
	QuotationID string
	Nonce       string
	Action      string
	Status      string
	RemoteAddr  string
}

// ResolveQuotation consumes a response nonce. The conditional update is the
// only write path to a terminal status, so at most one caller per nonce gets a
// row back; every other caller sees pgx.ErrNoRows.
func (q *Queries) ResolveQuotation(ctx context.Context, params ResolveQuotationParams) (Quotation, error) {
	tx, err := q.Pool.Begin(ctx)
	if err != nil {
		return Quotation{}, err
	}
	defer tx.Rollback(ctx)

	quotation, err := scanQuotation(tx.QueryRow(ctx,
		`UPDATE quotations
		SET status = $3, response_nonce = NULL, responded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND response_nonce = $2 AND status IN ('pending', 'sent')
		RETURNING `+quotationColumns,
		params.QuotationID, params.Nonce, params.Status,
	))
	if err != nil {
		return Quotation{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO quotation_responses (id, quotation_id, action, status, remote_addr, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		params.ResponseID, params.QuotationID, params.Action, params.Status, params.RemoteAddr, quotation.RespondedAt,
	); err != nil {
		return Quotation{}, fmt.Errorf("record response: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Quotation{}, err
	}
	return quotation, nil
}

// SetQuotationEstimate records the amount and, when synced, the accounting
// estimate id. Answered quotations keep the amount the client agreed to:
// pgx.ErrNoRows when the quotation is missing or terminal.
func (q *Queries) SetQuotationEstimate(ctx context.Context, id string, estimateID *string, amount float64) error {
	result, err := q.Pool.Exec(ctx,
		`UPDATE quotations
		SET amount = $2, estimate_id = COALESCE($3, estimate_id), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'sent')`,
		id, amount, estimateID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type QuotationResponse struct {
	ID          string
	QuotationID string
	Action      string
	Status      string
	RemoteAddr  string
	RespondedAt time.Time
}

func (q *Queries) GetResponseByQuotationID(ctx context.Context, quotationID string) (QuotationResponse, error) {
	var r QuotationResponse
	err := q.Pool.QueryRow(ctx,
		`SELECT id, quotation_id, action, status, remote_addr, responded_at
		FROM quotation_responses
		WHERE quotation_id = $1`,
		quotationID,
	).Scan(&r.ID, &r.QuotationID, &r.Action, &r.Status, &r.RemoteAddr, &r.RespondedAt)
	return r, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
