package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/apperr"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseTierID extracts and validates a positive integer tier ID path parameter.
func parseTierID(w http.ResponseWriter, r *http.Request, paramName string) (int, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid tier id: "+raw)
		return 0, false
	}
	return id, true
}

// errorBody is the validation error response with per-field problems.
type errorBody struct {
	Error    string                `json:"error"`
	Code     string                `json:"code"`
	Problems []apperr.FieldProblem `json:"problems,omitempty"`
}

// appErrorToHTTP maps domain errors to appropriate HTTP responses.
func appErrorToHTTP(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ve *apperr.ValidationError
	var inUse *apperr.InUseError
	var badTime *apperr.InvalidTimeError
	switch {
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "VALIDATION_ERROR", Problems: ve.Problems})
	case errors.As(err, &inUse):
		writeError(w, http.StatusConflict, "IN_USE", inUse.Error())
	case errors.As(err, &badTime):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_TIME", badTime.Error())
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid request body: %v", err))
}

// actor returns the X-Actor header, which attributes contacts to a user.
func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}
