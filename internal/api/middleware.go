package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ecoquote/internal/model"
	"ecoquote/internal/quickbooks"
	"ecoquote/internal/service"

	"go.uber.org/zap"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	Status    model.Status     `json:"status,omitempty"`
	Quotation *model.Quotation `json:"quotation,omitempty"`
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, code int, errCode, message string, log *zap.Logger) {
	writeErrorResponse(w, code, ErrorResponse{Error: message, Code: errCode}, log)
}

func writeErrorResponse(w http.ResponseWriter, code int, resp ErrorResponse, log *zap.Logger) {
	if code >= http.StatusInternalServerError {
		log.Error("API error", zap.Int("status", code), zap.String("code", resp.Code), zap.String("message", resp.Error))
	} else {
		log.Info("API error", zap.Int("status", code), zap.String("code", resp.Code), zap.String("message", resp.Error))
	}
	writeJSON(w, code, resp)
}

// WriteServiceError maps a service error onto the HTTP error taxonomy
func WriteServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	var resolved *service.AlreadyResolvedError
	var upstream *quickbooks.UpstreamError

	switch {
	case errors.As(err, &resolved):
		writeErrorResponse(w, http.StatusConflict, ErrorResponse{
			Error:     err.Error(),
			Code:      "already_resolved",
			Status:    resolved.Status,
			Quotation: resolved.Quotation,
		}, log)
	case errors.Is(err, service.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), log)
	case errors.Is(err, service.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error(), log)
	case errors.Is(err, service.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", err.Error(), log)
	case errors.Is(err, service.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error(), log)
	case errors.Is(err, service.ErrAlreadyResolved):
		WriteError(w, http.StatusConflict, "already_resolved", err.Error(), log)
	case errors.Is(err, service.ErrExpired):
		WriteError(w, http.StatusGone, "expired", err.Error(), log)
	case errors.Is(err, service.ErrNotConfigured):
		WriteError(w, http.StatusServiceUnavailable, "not_configured", err.Error(), log)
	case errors.As(err, &upstream):
		code := upstream.StatusCode
		if code < http.StatusBadRequest {
			code = http.StatusBadGateway
		}
		WriteError(w, code, "upstream_error", upstream.Message, log)
	default:
		log.Error("Unhandled service error", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error", log)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, log *zap.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", log)
		return false
	}
	return true
}

// RequestLogger logs HTTP requests and responses
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WebSocket upgrades need the raw ResponseWriter
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
