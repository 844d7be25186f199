package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Agency represents an agency row
type Agency struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// PermitType represents a permit_types row joined with its agency name
type PermitType struct {
	ID           string
	AgencyID     string
	AgencyName   string
	Name         string
	Price        float64
	TimeEstimate string
	ExternalID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const permitTypeColumns = `pt.id, pt.agency_id, a.name, pt.name, pt.price, pt.time_estimate,
	pt.external_id, pt.created_at, pt.updated_at`

func scanPermitType(row rowScanner) (PermitType, error) {
	var pt PermitType
	err := row.Scan(
		&pt.ID, &pt.AgencyID, &pt.AgencyName, &pt.Name, &pt.Price, &pt.TimeEstimate,
		&pt.ExternalID, &pt.CreatedAt, &pt.UpdatedAt,
	)
	return pt, err
}

func (q *Queries) CreateAgency(ctx context.Context, id, name string) (Agency, error) {
	var a Agency
	err := q.Pool.QueryRow(ctx,
		"INSERT INTO agencies (id, name) VALUES ($1, $2) RETURNING id, name, created_at",
		id, name,
	).Scan(&a.ID, &a.Name, &a.CreatedAt)
	return a, err
}

func (q *Queries) GetAgencyByID(ctx context.Context, id string) (Agency, error) {
	var a Agency
	err := q.Pool.QueryRow(ctx,
		"SELECT id, name, created_at FROM agencies WHERE id = $1",
		id,
	).Scan(&a.ID, &a.Name, &a.CreatedAt)
	return a, err
}

func (q *Queries) ListAgencies(ctx context.Context) ([]Agency, error) {
	rows, err := q.Pool.Query(ctx, "SELECT id, name, created_at FROM agencies ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agencies := make([]Agency, 0)
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}

type CreatePermitTypeParams struct {
	ID           string
	AgencyID     string
	Name         string
	Price        float64
	TimeEstimate string
	ExternalID   string
}

func (q *Queries) CreatePermitType(ctx context.Context, params CreatePermitTypeParams) (PermitType, error) {
	if _, err := q.Pool.Exec(ctx,
		`INSERT INTO permit_types (id, agency_id, name, price, time_estimate, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		params.ID, params.AgencyID, params.Name, params.Price, params.TimeEstimate, params.ExternalID,
	); err != nil {
		return PermitType{}, err
	}
	return q.GetPermitTypeByID(ctx, params.ID)
}

type UpdatePermitTypeParams struct {
	ID           string
	Name         *string
	Price        *float64
	TimeEstimate *string
	ExternalID   *string
}

func (q *Queries) UpdatePermitType(ctx context.Context, params UpdatePermitTypeParams) (PermitType, error) {
	result, err := q.Pool.Exec(ctx,
		`UPDATE permit_types
		SET name = COALESCE($2, name),
			price = COALESCE($3, price),
			time_estimate = COALESCE($4, time_estimate),
			external_id = COALESCE($5, external_id),
			updated_at = NOW()
		WHERE id = $1`,
		params.ID, params.Name, params.Price, params.TimeEstimate, params.ExternalID,
	)
	if err != nil {
		return PermitType{}, err
	}
	if result.RowsAffected() == 0 {
		return PermitType{}, pgx.ErrNoRows
	}
	return q.GetPermitTypeByID(ctx, params.ID)
}

func (q *Queries) GetPermitTypeByID(ctx context.Context, id string) (PermitType, error) {
	return scanPermitType(q.Pool.QueryRow(ctx,
		`SELECT `+permitTypeColumns+`
		FROM permit_types pt
		JOIN agencies a ON a.id = pt.agency_id
		WHERE pt.id = $1`,
		id,
	))
}

// ListPermitTypes lists the catalog, optionally for one agency
func (q *Queries) ListPermitTypes(ctx context.Context, agencyID *string) ([]PermitType, error) {
	var rows pgx.Rows
	var err error

	if agencyID != nil {
		rows, err = q.Pool.Query(ctx,
			`SELECT `+permitTypeColumns+`
			FROM permit_types pt
			JOIN agencies a ON a.id = pt.agency_id
			WHERE pt.agency_id = $1
			ORDER BY a.name ASC, pt.name ASC`,
			*agencyID,
		)
	} else {
		rows, err = q.Pool.Query(ctx,
			`SELECT `+permitTypeColumns+`
			FROM permit_types pt
			JOIN agencies a ON a.id = pt.agency_id
			ORDER BY a.name ASC, pt.name ASC`,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]PermitType, 0)
	for rows.Next() {
		pt, err := scanPermitType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}
