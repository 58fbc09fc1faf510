package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/audit"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/obs"
)

// RefreshCookieName is the HTTP-only cookie carrying the refresh token. It is
// the only place the refresh credential ever lives on the client.
const RefreshCookieName = "portal_refresh"

// invalidCredentialsMessage is shared by the unknown-email and wrong-password
// paths so both produce byte-identical responses.
const invalidCredentialsMessage = "invalid email or password"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Identity            auth.Identity `json:"identity"`
	AccessToken         string        `json:"accessToken"`
	ForceChangePassword bool          `json:"forceChangePassword"`
}

type refreshResponse struct {
	Identity    auth.Identity `json:"identity"`
	AccessToken string        `json:"accessToken"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.ObserveLogin("invalid")
			writeError(w, http.StatusUnauthorized, invalidCredentialsMessage)
		case errors.Is(err, auth.ErrSuspended):
			obs.ObserveLogin("suspended")
			writeError(w, http.StatusForbidden, "account suspended")
		default:
			obs.ObserveLogin("error")
			writeError(w, http.StatusInternalServerError, "authentication error")
		}
		return
	}

	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"subject": session.Identity.SubjectID,
	})
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Identity:            session.Identity,
		AccessToken:         session.AccessToken,
		ForceChangePassword: session.ForceChangePassword,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		obs.ObserveRotation("invalid")
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	session, err := a.auth.Rotate(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSuspended):
			obs.ObserveRotation("invalid")
			a.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid token")
		default:
			obs.ObserveRotation("error")
			writeError(w, http.StatusInternalServerError, "refresh error")
		}
		return
	}

	obs.ObserveRotation("ok")
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, refreshResponse{
		Identity:    session.Identity,
		AccessToken: session.AccessToken,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		a.auth.Logout(r.Context(), cookie.Value)
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleMe resolves the current identity from the bearer token, falling back
// to the refresh cookie. The fallback verifies without rotating.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		claims, err := auth.VerifyAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"identity": claims.Identity()})
		return
	}

	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	identity, err := a.auth.IdentityFromRefresh(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity})
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	NewPasswordConfirm string `json:"newPasswordConfirm"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := a.auth.ChangePassword(r.Context(), identity.SubjectID,
		req.CurrentPassword, req.NewPassword, req.NewPasswordConfirm)
	if err != nil {
		// Policy failures carry a specific rule description; there is no
		// enumeration risk on an already-authenticated account.
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, auth.ErrPasswordMismatch):
			writeError(w, http.StatusBadRequest, "password confirmation does not match")
		case errors.Is(err, auth.ErrPasswordTooWeak):
			writeError(w, http.StatusBadRequest,
				"password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and a symbol")
		case errors.Is(err, auth.ErrPasswordReused):
			writeError(w, http.StatusBadRequest, "cannot reuse a recent password")
		default:
			writeError(w, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	obs.ObservePasswordChange("self")
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword always answers 200 so responses cannot be used to
// probe which emails have accounts.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		obs.LogRequestError(r, err)
	} else {
		obs.ObservePasswordChange("recovery")
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
