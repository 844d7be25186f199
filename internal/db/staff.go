package db

import (
	"context"
	"time"
)

// Staff represents a staff row
type Staff struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}

const staffColumns = "id, name, email, role, password_hash, created_at"

func scanStaff(row rowScanner) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Role, &s.PasswordHash, &s.CreatedAt)
	return s, err
}

type CreateStaffParams struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash string
}

func (q *Queries) CreateStaff(ctx context.Context, params CreateStaffParams) (Staff, error) {
	return scanStaff(q.Pool.QueryRow(ctx,
		`INSERT INTO staff (id, name, email, role, password_hash)
		VALUES ($1, $2, lower($3), $4, $5)
		RETURNING `+staffColumns,
		params.ID, params.Name, params.Email, params.Role, params.PasswordHash,
	))
}

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	return scanStaff(q.Pool.QueryRow(ctx,
		"SELECT "+staffColumns+" FROM staff WHERE email = lower($1)",
		email,
	))
}

func (q *Queries) GetStaffByID(ctx context.Context, id string) (Staff, error) {
	return scanStaff(q.Pool.QueryRow(ctx,
		"SELECT "+staffColumns+" FROM staff WHERE id = $1",
		id,
	))
}

func (q *Queries) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := q.Pool.Query(ctx, "SELECT "+staffColumns+" FROM staff ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]Staff, 0)
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}
