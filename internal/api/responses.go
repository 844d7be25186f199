package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (d Dependencies) sendQuotation(w http.ResponseWriter, r *http.Request) {
	result, err := d.Quotations.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d Dependencies) syncEstimate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := d.Quotations.SyncEstimate(r.Context(), id); err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"quotationId": id,
		"status":      "accepted",
	})
}

func (d Dependencies) verifyToken(w http.ResponseWriter, r *http.Request) {
	v, err := d.Quotations.VerifyToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type SubmitResponseRequest struct {
	Token string `json:"token"`
}

func (d Dependencies) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req SubmitResponseRequest
	if !decodeJSON(w, r, &req, d.Log) {
		return
	}

	status, err := d.Quotations.SubmitResponse(r.Context(), req.Token, r.RemoteAddr)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (d Dependencies) quotationPDF(w http.ResponseWriter, r *http.Request) {
	doc, err := d.Quotations.RenderPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Content); err != nil {
		d.Log.Warn("Failed to write PDF", zap.Error(err))
	}
}
