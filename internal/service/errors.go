package service

import (
	"errors"
	"fmt"

	"ecoquote/internal/model"
	"ecoquote/internal/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyResolved = errors.New("quotation already resolved")
	ErrExpired         = errors.New("response link expired")
	ErrNotConfigured   = errors.New("integration not configured")
)

// AlreadyResolvedError reports the terminal state a response attempt ran into.
// It matches ErrAlreadyResolved with errors.Is.
type AlreadyResolvedError struct {
	Status    model.Status
	Quotation *model.Quotation
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("quotation already %s", e.Status)
}

func (e *AlreadyResolvedError) Is(target error) bool {
	return target == ErrAlreadyResolved
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// schemaError folds schema violations into ErrValidation
func schemaError(err error) error {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", ErrValidation, ve.Error())
	}
	return err
}

// notFound maps a missing row to ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
