package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *model.AttributeError
	switch {
	case errors.As(err, &ae):
		writeJSONError(w, http.StatusBadRequest, ae.Error())
	case errors.Is(err, model.ErrInvalidAttribute):
		writeJSONError(w, http.StatusBadRequest, model.ErrInvalidAttribute.Error())
	case errors.Is(err, model.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, model.ErrNotFound.Error())
	case errors.Is(err, model.ErrConflict):
		writeJSONError(w, http.StatusConflict, model.ErrConflict.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes the body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewAttributeError(key, "must be a non-negative integer")
	}
	return n, nil
}
