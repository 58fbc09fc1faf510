package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/audit"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/obs"
)

// handleAdminPasswordReset issues a fresh temporary password for the target
// account. The secret is returned in this response once and never logged.
func (a *API) handleAdminPasswordReset(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	temp, err := a.auth.ResetPassword(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "password reset failed")
		return
	}

	obs.ObservePasswordChange("admin")
	_ = audit.LogEvent(r.Context(), "auth.password.reset", map[string]any{
		"target": userID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"tempPassword": temp})
}

type adminUserUpdateRequest struct {
	Status         *string `json:"status"`
	Role           *string `json:"role"`
	OrganizationID *string `json:"organizationId"`
}

type adminUserView struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	OrganizationID string `json:"organizationId,omitempty"`
}

func (a *API) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req adminUserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.UpdateUser(r.Context(), userID, auth.UserUpdate{
		Status:         req.Status,
		Role:           req.Role,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "unrecognized status or role value")
		default:
			writeError(w, http.StatusInternalServerError, "update failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.updated", map[string]any{
		"target": userID,
	})
	writeJSON(w, http.StatusOK, adminUserView{
		ID:             user.ID,
		Email:          user.Email,
		Role:           user.Role,
		Status:         user.Status,
		OrganizationID: user.OrganizationID,
	})
}
