package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/auth"
	"github.com/contractlens/backend/internal/logging"
	"github.com/contractlens/backend/internal/repository"
)

const maxBodyBytes = 1 << 20

// nowFunc is the clock used for date-relative views.
var nowFunc = time.Now

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteJSON writes a JSON response (exported version)
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

// writeData wraps list responses as {"data": ...}.
func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// writeError writes an API error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	err.Write(w, r)
}

// badRequest is shorthand for a 400 envelope.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, apierrors.NewBadRequestError(message))
}

// respondErr maps service and repository errors onto the API envelope.
// Unexpected errors are logged and reported as 500.
func respondErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, resource string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, r, apierrors.NewNotFoundError(resource, chi.URLParam(r, "id")))
		return
	}
	apiErr := apierrors.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), logger).Error("request failed",
			"resource", resource, "path", r.URL.Path, "error", err)
	}
	writeError(w, r, apiErr)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, r, "invalid request body")
		return false
	}
	return true
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userID == uuid.Nil {
		writeError(w, r, apierrors.NewUnauthorizedError("authentication required"))
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a UUID path parameter or writes a 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, r, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads a positive integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
