package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/filter"
	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/layout"
	"github.com/dshills/galeview/pkg/storage"
	"github.com/dshills/galeview/pkg/validation"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam reads and validates an identifier path parameter. It writes a 400
// and returns false when the value is not a valid identifier.
func urlParam(w http.ResponseWriter, r *http.Request, name string, kind validation.IdentifierKind) (string, bool) {
	value := chi.URLParam(r, name)
	if err := validation.ValidateIdentifier(kind, value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return value, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps package errors to HTTP statuses
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	var statusErr *broker.StatusError
	switch {
	case errors.Is(err, broker.ErrNotFound), errors.Is(err, storage.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, validation.ErrInvalidIdentifier),
		errors.Is(err, validation.ErrSchemaViolation),
		filter.IsExpressionError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, flow.ErrUnknownNodeType),
		errors.Is(err, flow.ErrMissingField),
		errors.Is(err, flow.ErrInvalidField),
		errors.Is(err, flow.ErrInvalidJSON),
		errors.Is(err, flow.ErrInvalidLink),
		errors.Is(err, layout.ErrEmptyFlow):
		s.logger.Warn("broker returned an unusable flow", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &statusErr):
		s.logger.Warn("broker request failed", "status", statusErr.StatusCode, "path", statusErr.Path)
		writeError(w, http.StatusBadGateway, "broker request failed")
	default:
		s.writeInternalError(w, err)
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func (s *Server) writeInternalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
