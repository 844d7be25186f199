// Package memstore is an in-memory implementation of the persistence
// interfaces, with the same not-found and conditional-update semantics as
// the PostgreSQL queries. Used by tests and local demos.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ecoquote/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errUnique = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

type Store struct {
	mu          sync.Mutex
	quotations  map[string]db.Quotation
	requests    map[string][]db.PermitRequest
	responses   map[string]db.QuotationResponse
	agencies    map[string]db.Agency
	permitTypes map[string]db.PermitType
	staff       map[string]db.Staff
	now         func() time.Time
}

func New() *Store {
	return &Store{
		quotations:  make(map[string]db.Quotation),
		requests:    make(map[string][]db.PermitRequest),
		responses:   make(map[string]db.QuotationResponse),
		agencies:    make(map[string]db.Agency),
		permitTypes: make(map[string]db.PermitType),
		staff:       make(map[string]db.Staff),
		now:         time.Now,
	}
}

// Quotations

func (s *Store) CreateQuotation(ctx context.Context, params db.CreateQuotationParams) (db.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotations[params.ID]; ok {
		return db.Quotation{}, errUnique
	}
	for _, pr := range params.PermitRequests {
		if pr.PermitTypeID != nil {
			if _, ok := s.permitTypes[*pr.PermitTypeID]; !ok {
				return db.Quotation{}, &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
			}
		}
	}

	now := s.now()
	s.quotations[params.ID] = db.Quotation{
		ID:          params.ID,
		Name:        params.Name,
		Email:       params.Email,
		Phone:       params.Phone,
		Company:     params.Company,
		ServiceType: params.ServiceType,
		Description: params.Description,
		Status:      params.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, pr := range params.PermitRequests {
		s.requests[params.ID] = append(s.requests[params.ID], db.PermitRequest{
			ID:           pr.ID,
			QuotationID:  params.ID,
			PermitTypeID: pr.PermitTypeID,
			CustomName:   pr.CustomName,
			CreatedAt:    now,
		})
	}
	return s.loadLocked(params.ID)
}

func (s *Store) GetQuotationByID(ctx context.Context, id string) (db.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *Store) loadLocked(id string) (db.Quotation, error) {
	q, ok := s.quotations[id]
	if !ok {
		return db.Quotation{}, pgx.ErrNoRows
	}
	q.PermitRequests = s.permitRequestsLocked(id)
	return q, nil
}

func (s *Store) permitRequestsLocked(quotationID string) []db.PermitRequest {
	out := make([]db.PermitRequest, 0, len(s.requests[quotationID]))
	for _, pr := range s.requests[quotationID] {
		if pr.PermitTypeID != nil {
			if pt, ok := s.permitTypes[*pr.PermitTypeID]; ok {
				pt.AgencyName = s.agencies[pt.AgencyID].Name
				pr.PermitType = &pt
			}
		}
		out = append(out, pr)
	}
	return out
}

func (s *Store) ListQuotations(ctx context.Context, status *string, limit, offset int) ([]db.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]db.Quotation, 0, len(s.quotations))
	for _, q := range s.quotations {
		if status != nil && q.Status != *status {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []db.Quotation{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) CountQuotationsByStatus(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, q := range s.quotations {
		counts[q.Status]++
	}
	return counts, nil
}

func (s *Store) ListPermitRequests(ctx context.Context, quotationID string) ([]db.PermitRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permitRequestsLocked(quotationID), nil
}

func (s *Store) CreatePermitRequest(ctx context.Context, params db.CreatePermitRequestParams) (db.PermitRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotations[params.QuotationID]
	if !ok || !isOpen(q) {
		return db.PermitRequest{}, pgx.ErrNoRows
	}
	now := s.now()
	pr := db.PermitRequest{
		ID:           params.ID,
		QuotationID:  params.QuotationID,
		PermitTypeID: params.PermitTypeID,
		CustomName:   params.CustomName,
		CreatedAt:    now,
	}
	s.requests[params.QuotationID] = append(s.requests[params.QuotationID], pr)
	q.UpdatedAt = now
	s.quotations[q.ID] = q
	return pr, nil
}

func (s *Store) DeletePermitRequest(ctx context.Context, quotationID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotations[quotationID]
	if !ok || !isOpen(q) {
		return pgx.ErrNoRows
	}
	list := s.requests[quotationID]
	for i, pr := range list {
		if pr.ID == id {
			s.requests[quotationID] = append(list[:i:i], list[i+1:]...)
			q.UpdatedAt = s.now()
			s.quotations[quotationID] = q
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (s *Store) MarkQuotationSent(ctx context.Context, id, nonce string, expiresAt time.Time) (db.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotations[id]
	if !ok || !isOpen(q) {
		return db.Quotation{}, pgx.ErrNoRows
	}
	q.Status = "sent"
	q.ResponseNonce = &nonce
	q.TokenExpiresAt = &expiresAt
	q.UpdatedAt = s.now()
	s.quotations[id] = q
	return s.loadLocked(id)
}

// ResolveQuotation mirrors the conditional UPDATE: only a non-terminal row
// holding the given nonce is changed.
func (s *Store) ResolveQuotation(ctx context.Context, params db.ResolveQuotationParams) (db.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotations[params.QuotationID]
	if !ok || q.ResponseNonce == nil || *q.ResponseNonce != params.Nonce || !isOpen(q) {
		return db.Quotation{}, pgx.ErrNoRows
	}
	if _, exists := s.responses[params.QuotationID]; exists {
		return db.Quotation{}, errUnique
	}

	now := s.now()
	q.Status = params.Status
	q.ResponseNonce = nil
	q.RespondedAt = &now
	q.UpdatedAt = now
	s.quotations[q.ID] = q
	s.responses[q.ID] = db.QuotationResponse{
		ID:          params.ResponseID,
		QuotationID: q.ID,
		Action:      params.Action,
		Status:      params.Status,
		RemoteAddr:  params.RemoteAddr,
		RespondedAt: now,
	}
	return q, nil
}

func (s *Store) SetQuotationEstimate(ctx context.Context, id string, estimateID *string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotations[id]
	if !ok || !isOpen(q) {
		return pgx.ErrNoRows
	}
	q.Amount = &amount
	if estimateID != nil {
		q.EstimateID = estimateID
	}
	q.UpdatedAt = s.now()
	s.quotations[id] = q
	return nil
}

// isOpen mirrors the status IN ('pending', 'sent') guard of the conditional updates
func isOpen(q db.Quotation) bool {
	return q.Status == "pending" || q.Status == "sent"
}

func (s *Store) GetResponseByQuotationID(ctx context.Context, quotationID string) (db.QuotationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.responses[quotationID]
	if !ok {
		return db.QuotationResponse{}, pgx.ErrNoRows
	}
	return r, nil
}

// SetStatus forces a quotation into a status. Test helper.
func (s *Store) SetStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotations[id]; ok {
		q.Status = status
		s.quotations[id] = q
	}
}

// SetNow replaces the clock used for timestamps
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Catalog

func (s *Store) CreateAgency(ctx context.Context, id, name string) (db.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.agencies {
		if a.Name == name {
			return db.Agency{}, errUnique
		}
	}
	a := db.Agency{ID: id, Name: name, CreatedAt: s.now()}
	s.agencies[id] = a
	return a, nil
}

func (s *Store) GetAgencyByID(ctx context.Context, id string) (db.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agencies[id]
	if !ok {
		return db.Agency{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *Store) ListAgencies(ctx context.Context) ([]db.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]db.Agency, 0, len(s.agencies))
	for _, a := range s.agencies {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreatePermitType(ctx context.Context, params db.CreatePermitTypeParams) (db.PermitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agency, ok := s.agencies[params.AgencyID]
	if !ok {
		return db.PermitType{}, &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
	}
	for _, pt := range s.permitTypes {
		if pt.AgencyID == params.AgencyID && pt.Name == params.Name {
			return db.PermitType{}, errUnique
		}
	}
	now := s.now()
	pt := db.PermitType{
		ID:           params.ID,
		AgencyID:     params.AgencyID,
		Name:         params.Name,
		Price:        params.Price,
		TimeEstimate: params.TimeEstimate,
		ExternalID:   params.ExternalID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.permitTypes[pt.ID] = pt
	pt.AgencyName = agency.Name
	return pt, nil
}

func (s *Store) UpdatePermitType(ctx context.Context, params db.UpdatePermitTypeParams) (db.PermitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := s.permitTypes[params.ID]
	if !ok {
		return db.PermitType{}, pgx.ErrNoRows
	}
	if params.Name != nil {
		pt.Name = *params.Name
	}
	if params.Price != nil {
		pt.Price = *params.Price
	}
	if params.TimeEstimate != nil {
		pt.TimeEstimate = *params.TimeEstimate
	}
	if params.ExternalID != nil {
		pt.ExternalID = *params.ExternalID
	}
	pt.UpdatedAt = s.now()
	s.permitTypes[pt.ID] = pt
	pt.AgencyName = s.agencies[pt.AgencyID].Name
	return pt, nil
}

func (s *Store) GetPermitTypeByID(ctx context.Context, id string) (db.PermitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := s.permitTypes[id]
	if !ok {
		return db.PermitType{}, pgx.ErrNoRows
	}
	pt.AgencyName = s.agencies[pt.AgencyID].Name
	return pt, nil
}

func (s *Store) ListPermitTypes(ctx context.Context, agencyID *string) ([]db.PermitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]db.PermitType, 0, len(s.permitTypes))
	for _, pt := range s.permitTypes {
		if agencyID != nil && pt.AgencyID != *agencyID {
			continue
		}
		pt.AgencyName = s.agencies[pt.AgencyID].Name
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgencyName != out[j].AgencyName {
			return out[i].AgencyName < out[j].AgencyName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Staff

func (s *Store) CreateStaff(ctx context.Context, params db.CreateStaffParams) (db.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(params.Email)
	for _, st := range s.staff {
		if st.Email == email {
			return db.Staff{}, errUnique
		}
	}
	st := db.Staff{
		ID:           params.ID,
		Name:         params.Name,
		Email:        email,
		Role:         params.Role,
		PasswordHash: params.PasswordHash,
		CreatedAt:    s.now(),
	}
	s.staff[st.ID] = st
	return st, nil
}

func (s *Store) GetStaffByEmail(ctx context.Context, email string) (db.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, st := range s.staff {
		if st.Email == email {
			return st, nil
		}
	}
	return db.Staff{}, pgx.ErrNoRows
}

func (s *Store) GetStaffByID(ctx context.Context, id string) (db.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.staff[id]
	if !ok {
		return db.Staff{}, pgx.ErrNoRows
	}
	return st, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]db.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]db.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
