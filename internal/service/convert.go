package service

import (
	"time"

	"ecoquote/internal/db"
	"ecoquote/internal/model"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

func dbQuotationToModel(q db.Quotation) *model.Quotation {
	m := &model.Quotation{
		ID:             q.ID,
		Name:           q.Name,
		Email:          q.Email,
		Phone:          q.Phone,
		Company:        q.Company,
		ServiceType:    model.ServiceType(q.ServiceType),
		Description:    q.Description,
		Status:         model.Status(q.Status),
		Amount:         q.Amount,
		EstimateID:     q.EstimateID,
		TokenExpiresAt: timePtrToString(q.TokenExpiresAt),
		RespondedAt:    timePtrToString(q.RespondedAt),
		PermitRequests: make([]model.PermitRequest, 0, len(q.PermitRequests)),
		CreatedAt:      q.CreatedAt.Format(timeLayout),
		UpdatedAt:      q.UpdatedAt.Format(timeLayout),
	}
	for _, pr := range q.PermitRequests {
		m.PermitRequests = append(m.PermitRequests, dbPermitRequestToModel(pr))
	}
	return m
}

func dbPermitRequestToModel(pr db.PermitRequest) model.PermitRequest {
	m := model.PermitRequest{
		ID:           pr.ID,
		QuotationID:  pr.QuotationID,
		PermitTypeID: pr.PermitTypeID,
		CustomName:   pr.CustomName,
		CreatedAt:    pr.CreatedAt.Format(timeLayout),
	}
	if pr.PermitType != nil {
		pt := dbPermitTypeToModel(*pr.PermitType)
		m.PermitType = &pt
	}
	return m
}

func dbPermitTypeToModel(pt db.PermitType) model.PermitType {
	m := model.PermitType{
		ID:           pt.ID,
		AgencyID:     pt.AgencyID,
		AgencyName:   pt.AgencyName,
		Name:         pt.Name,
		Price:        pt.Price,
		TimeEstimate: pt.TimeEstimate,
		ExternalID:   pt.ExternalID,
	}
	if !pt.CreatedAt.IsZero() {
		m.CreatedAt = pt.CreatedAt.Format(timeLayout)
		m.UpdatedAt = pt.UpdatedAt.Format(timeLayout)
	}
	return m
}

func dbAgencyToModel(a db.Agency) model.Agency {
	return model.Agency{
		ID:        a.ID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt.Format(timeLayout),
	}
}

func dbStaffToModel(s db.Staff) model.Staff {
	return model.Staff{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Role:      model.Role(s.Role),
		CreatedAt: s.CreatedAt.Format(timeLayout),
	}
}

func dbResponseToModel(r db.QuotationResponse) *model.QuotationResponse {
	return &model.QuotationResponse{
		ID:          r.ID,
		QuotationID: r.QuotationID,
		Action:      model.Action(r.Action),
		Status:      model.Status(r.Status),
		RemoteAddr:  r.RemoteAddr,
		RespondedAt: r.RespondedAt.Format(timeLayout),
	}
}

func timePtrToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}
