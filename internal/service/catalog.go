package service

import (
	"context"
	"fmt"
	"strings"

	"ecoquote/internal/db"
	"ecoquote/internal/model"
	"ecoquote/internal/schema"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type CatalogService struct {
	store      CatalogStore
	schemaComp *schema.Compiler
	log        *zap.Logger
}

func NewCatalogService(store CatalogStore, schemaComp *schema.Compiler, log *zap.Logger) *CatalogService {
	return &CatalogService{store: store, schemaComp: schemaComp, log: log}
}

// ListAgencies returns every agency with its permit types
func (s *CatalogService) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	agencies, err := s.store.ListAgencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", err)
	}
	permitTypes, err := s.store.ListPermitTypes(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list permit types: %w", err)
	}

	byAgency := make(map[string][]model.PermitType)
	for _, pt := range permitTypes {
		byAgency[pt.AgencyID] = append(byAgency[pt.AgencyID], dbPermitTypeToModel(pt))
	}

	out := make([]model.Agency, 0, len(agencies))
	for _, a := range agencies {
		agency := dbAgencyToModel(a)
		agency.PermitTypes = byAgency[a.ID]
		if agency.PermitTypes == nil {
			agency.PermitTypes = []model.PermitType{}
		}
		out = append(out, agency)
	}
	return out, nil
}

func (s *CatalogService) CreateAgency(ctx context.Context, name string) (*model.Agency, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("agency name is required")
	}
	a, err := s.store.CreateAgency(ctx, ulid.Make().String(), name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationError("agency %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create agency: %w", err)
	}
	s.log.Info("Agency created", zap.String("agency_id", a.ID), zap.String("name", a.Name))
	agency := dbAgencyToModel(a)
	agency.PermitTypes = []model.PermitType{}
	return &agency, nil
}

// ListPermitTypes lists the catalog, optionally restricted to one agency
func (s *CatalogService) ListPermitTypes(ctx context.Context, agencyID string) ([]model.PermitType, error) {
	var filter *string
	if agencyID != "" {
		if _, err := s.store.GetAgencyByID(ctx, agencyID); err != nil {
			return nil, notFound(err, "agency")
		}
		filter = &agencyID
	}
	rows, err := s.store.ListPermitTypes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list permit types: %w", err)
	}
	out := make([]model.PermitType, 0, len(rows))
	for _, pt := range rows {
		out = append(out, dbPermitTypeToModel(pt))
	}
	return out, nil
}

func (s *CatalogService) GetPermitType(ctx context.Context, id string) (*model.PermitType, error) {
	pt, err := s.store.GetPermitTypeByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "permit type")
	}
	m := dbPermitTypeToModel(pt)
	return &m, nil
}

type PermitTypeInput struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	TimeEstimate string  `json:"timeEstimate,omitempty"`
	ExternalID   string  `json:"externalId,omitempty"`
}

func (s *CatalogService) CreatePermitType(ctx context.Context, agencyID string, input PermitTypeInput) (*model.PermitType, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.TimeEstimate = strings.TrimSpace(input.TimeEstimate)
	input.ExternalID = strings.TrimSpace(input.ExternalID)
	if err := s.schemaComp.Validate(ctx, schema.PermitType, input); err != nil {
		return nil, schemaError(err)
	}
	if _, err := s.store.GetAgencyByID(ctx, agencyID); err != nil {
		return nil, notFound(err, "agency")
	}

	pt, err := s.store.CreatePermitType(ctx, db.CreatePermitTypeParams{
		ID:           ulid.Make().String(),
		AgencyID:     agencyID,
		Name:         input.Name,
		Price:        input.Price,
		TimeEstimate: input.TimeEstimate,
		ExternalID:   input.ExternalID,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationError("permit type %q already exists for this agency", input.Name)
		}
		return nil, fmt.Errorf("failed to create permit type: %w", err)
	}
	m := dbPermitTypeToModel(pt)
	return &m, nil
}

type PermitTypeUpdate struct {
	Name         *string  `json:"name,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	TimeEstimate *string  `json:"timeEstimate,omitempty"`
	ExternalID   *string  `json:"externalId,omitempty"`
}

func (s *CatalogService) UpdatePermitType(ctx context.Context, id string, update PermitTypeUpdate) (*model.PermitType, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, validationError("permit type name must not be empty")
		}
		update.Name = &name
	}
	if update.Price != nil && *update.Price < 0 {
		return nil, validationError("price must not be negative")
	}

	pt, err := s.store.UpdatePermitType(ctx, db.UpdatePermitTypeParams{
		ID:           id,
		Name:         update.Name,
		Price:        update.Price,
		TimeEstimate: update.TimeEstimate,
		ExternalID:   update.ExternalID,
	})
	if err != nil {
		return nil, notFound(err, "permit type")
	}
	m := dbPermitTypeToModel(pt)
	return &m, nil
}
