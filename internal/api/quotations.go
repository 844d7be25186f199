package api

import (
	"net/http"
	"strconv"

	"ecoquote/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req service.CreateQuotationInput
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	q, err := d.Quotations.Create(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (d Dependencies) listQuotations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := intParam(query.Get("limit"), 50)
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer", d.Log)
		return
	}
	offset, ok := intParam(query.Get("offset"), 0)
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_request", "offset must be an integer", d.Log)
		return
	}

	quotations, err := d.Quotations.List(r.Context(), service.ListQuotationsInput{
		Status: query.Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quotations": quotations,
		"limit":      limit,
		"offset":     offset,
	})
}

func (d Dependencies) getQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := d.Quotations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (d Dependencies) addPermitRequest(w http.ResponseWriter, r *http.Request) {
	var req service.PermitRequestInput
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	q, err := d.Quotations.AddPermitRequest(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (d Dependencies) removePermitRequest(w http.ResponseWriter, r *http.Request) {
	q, err := d.Quotations.RemovePermitRequest(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "requestId"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type SetAmountRequest struct {
	Amount *float64 `json:"amount"`
}

func (d Dependencies) setAmount(w http.ResponseWriter, r *http.Request) {
	var req SetAmountRequest
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}
	if req.Amount == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount is required", d.Log)
		return
	}

	q, err := d.Quotations.SetAmount(r.Context(), chi.URLParam(r, "id"), *req.Amount)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (d Dependencies) quotationEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, err := int64Param(query.Get("since"), 0)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "since must be an integer", d.Log)
		return
	}
	limit, err := int64Param(query.Get("limit"), 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer", d.Log)
		return
	}

	events, err := d.Quotations.Events(r.Context(), chi.URLParam(r, "id"), since, limit)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func intParam(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func int64Param(v string, def int64) (int64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
