package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ecoquote/internal/auth"
	"ecoquote/internal/db"
	"ecoquote/internal/model"
	"ecoquote/internal/schema"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type StaffService struct {
	store      StaffStore
	jwt        *auth.JWTConfig
	schemaComp *schema.Compiler
	log        *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewStaffService(store StaffStore, jwt *auth.JWTConfig, schemaComp *schema.Compiler, log *zap.Logger) *StaffService {
	return &StaffService{store: store, jwt: jwt, schemaComp: schemaComp, log: log}
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	User      model.Staff `json:"user"`
}

// Login checks credentials and issues a bearer token
func (s *StaffService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	staff, err := s.store.GetStaffByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		// Keep unknown emails as slow as wrong passwords
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		s.log.Info("Failed login", zap.String("staff_id", staff.ID))
		return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}

	token, expiresAt, err := s.jwt.Issue(staff.ID, model.Role(staff.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.log.Info("Staff logged in", zap.String("staff_id", staff.ID), zap.String("role", staff.Role))
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt.Format(timeLayout),
		User:      dbStaffToModel(staff),
	}, nil
}

func (s *StaffService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	return s.dummyHash
}

// Me returns the authenticated staff member
func (s *StaffService) Me(ctx context.Context, staffID string) (*model.Staff, error) {
	staff, err := s.store.GetStaffByID(ctx, staffID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("staff account no longer exists: %w", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	m := dbStaffToModel(staff)
	return &m, nil
}

type CreateStaffInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	Password string     `json:"password"`
}

func (s *StaffService) CreateStaff(ctx context.Context, input CreateStaffInput) (*model.Staff, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.schemaComp.Validate(ctx, schema.StaffCreate, input); err != nil {
		return nil, schemaError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff, err := s.store.CreateStaff(ctx, db.CreateStaffParams{
		ID:           ulid.Make().String(),
		Name:         input.Name,
		Email:        input.Email,
		Role:         string(input.Role),
		PasswordHash: string(hash),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationError("email %s is already registered", input.Email)
		}
		return nil, fmt.Errorf("failed to create staff: %w", err)
	}

	s.log.Info("Staff created", zap.String("staff_id", staff.ID), zap.String("role", staff.Role))
	m := dbStaffToModel(staff)
	return &m, nil
}

func (s *StaffService) ListStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	out := make([]model.Staff, 0, len(rows))
	for _, st := range rows {
		out = append(out, dbStaffToModel(st))
	}
	return out, nil
}
