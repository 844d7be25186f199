package api

import (
	"net/http"

	"ecoquote/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) listPermits(w http.ResponseWriter, r *http.Request) {
	permits, err := d.Catalog.ListPermitTypes(r.Context(), r.URL.Query().Get("agencyId"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permits": permits})
}

func (d Dependencies) listAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := d.Catalog.ListAgencies(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agencies": agencies})
}

type CreateAgencyRequest struct {
	Name string `json:"name"`
}

func (d Dependencies) createAgency(w http.ResponseWriter, r *http.Request) {
	var req CreateAgencyRequest
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	agency, err := d.Catalog.CreateAgency(r.Context(), req.Name)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, agency)
}

func (d Dependencies) createPermitType(w http.ResponseWriter, r *http.Request) {
	var req service.PermitTypeInput
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	pt, err := d.Catalog.CreatePermitType(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, pt)
}

func (d Dependencies) updatePermitType(w http.ResponseWriter, r *http.Request) {
	var req service.PermitTypeUpdate
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	pt, err := d.Catalog.UpdatePermitType(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}
