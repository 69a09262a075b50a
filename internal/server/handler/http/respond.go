package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Code: code})
}

// decode reads a JSON body into v. It writes a 400 and returns false on
// failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body", models.CodeInvalidInput)
		return false
	}
	return true
}

// authStatus is the HTTP status of each authentication failure.
var authStatus = map[models.AuthErrorKind]int{
	models.AuthInvalidIdentifier:   http.StatusBadRequest,
	models.AuthWeakSecret:          http.StatusBadRequest,
	models.AuthIdentifierInUse:     http.StatusConflict,
	models.AuthNotFound:            http.StatusUnauthorized,
	models.AuthWrongSecret:         http.StatusUnauthorized,
	models.AuthDisabledAccount:     http.StatusForbidden,
	models.AuthOperationNotAllowed: http.StatusForbidden,
}

// writeError maps a service error onto a status and error code. Unexpected
// errors are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var authErr *models.AuthError
	switch {
	case errors.As(err, &authErr):
		status, ok := authStatus[authErr.Kind]
		if !ok {
			log.Error("authentication failed", zap.Error(err))
			status = http.StatusInternalServerError
		}
		writeErrorCode(w, status, string(authErr.Kind), string(authErr.Kind))
	case errors.Is(err, models.ErrInvalidInput):
		writeErrorCode(w, http.StatusBadRequest, err.Error(), models.CodeInvalidInput)
	case errors.Is(err, models.ErrUnauthorized):
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", models.CodeUnauthorized)
	case errors.Is(err, models.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "forbidden", models.CodeForbidden)
	case errors.Is(err, models.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not found", models.CodeMissing)
	case errors.Is(err, models.ErrAnalysisDisabled):
		writeErrorCode(w, http.StatusServiceUnavailable, "analysis is not configured", models.CodeAnalysisDisabled)
	case errors.Is(err, models.ErrCommunication):
		log.Warn("analysis failed", zap.Error(err))
		writeErrorCode(w, http.StatusBadGateway, "analysis failed", models.CodeAnalysisFailed)
	default:
		log.Error("request failed", zap.Error(err))
		writeErrorCode(w, http.StatusInternalServerError, "internal error", models.CodeInternal)
	}
}
