package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/teamroster/internal/docpath"
	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository"
	"github.com/splax/teamroster/internal/service/auth"
	"github.com/splax/teamroster/internal/service/rules"
	"github.com/splax/teamroster/pkg/crypto"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto status codes; unknown errors are logged and
// reported without detail.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docpath.ErrInvalidPath),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, crypto.ErrPasswordTooShort),
		errors.Is(err, auth.ErrTokenRequired),
		errors.Is(err, domain.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, rules.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, rules.ErrForbidden),
		errors.Is(err, auth.ErrAdminSignupDisabled):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, auth.ErrEmailTaken):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
