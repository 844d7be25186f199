package api

import (
	"net/http"

	"ecoquote/internal/auth"
	"ecoquote/internal/service"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d Dependencies) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	result, err := d.Staff.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d Dependencies) me(w http.ResponseWriter, r *http.Request) {
	staff, err := d.Staff.Me(r.Context(), auth.GetStaffID(r.Context()))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

func (d Dependencies) listStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := d.Staff.ListStaff(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"staff": staff})
}

func (d Dependencies) createStaff(w http.ResponseWriter, r *http.Request) {
	var req service.CreateStaffInput
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	staff, err := d.Staff.CreateStaff(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, staff)
}
