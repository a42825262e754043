package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/loom/internal/apperr"
)

// errorBody is the single-line error shape every failing endpoint returns.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps error kinds to status codes: bad input 400, unknown
// resource 404, disallowed transition or conflict 409, missing optional
// dependency 503, expired deadline 504, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, apperr.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrState):
		status, kind = http.StatusConflict, "state"
	case errors.Is(err, apperr.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperr.ErrBackendUnavailable):
		status, kind = http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, apperr.ErrTimeout):
		status, kind = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, apperr.ErrVcs):
		status, kind = http.StatusInternalServerError, "vcs"
	case errors.Is(err, apperr.ErrStorageUnavailable):
		status, kind = http.StatusInternalServerError, "storage_unavailable"
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// decode parses the request body into dst, answering 400 on malformed JSON.
// An empty body decodes to the zero value.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.Validationf("malformed request body: %v", err))
		return false
	}
	return true
}

// intQuery reads an integer query parameter with a default.
func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
