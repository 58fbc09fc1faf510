package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/obs"
)

// ReadyProbe checks backing dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer of the portal backend.
type API struct {
	router     *mux.Router
	auth       *auth.Service
	guard      *Guard
	readyProbe ReadyProbe
	version    string

	// secureCookies is enabled outside local development so the refresh
	// cookie only travels over TLS.
	secureCookies bool

	rateBurst  int
	ratePerSec int
	corsOrigin string
}

// Option configures API construction.
type Option func(*API)

// WithCORSOrigin allows cross-origin requests from the given origin. Empty
// leaves CORS disabled.
func WithCORSOrigin(origin string) Option {
	return func(a *API) { a.corsOrigin = origin }
}

// WithRateLimit overrides the per-IP token bucket parameters.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func New(svc *auth.Service, rp ReadyProbe, version string, secureCookies bool, opts ...Option) *API {
	a := &API{
		router:        mux.NewRouter(),
		auth:          svc,
		guard:         NewGuard(),
		readyProbe:    rp,
		version:       version,
		secureCookies: secureCookies,
		rateBurst:     20,
		ratePerSec:    10,
	}
	for _, opt := range opts {
		opt(a)
	}

	r := a.router
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", a.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", a.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/auth/forgot-password", a.handleForgotPassword).Methods(http.MethodPost)

	r.Handle("/auth/change-password",
		a.withBearer(http.HandlerFunc(a.handleChangePassword))).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(a.withBearer, RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/users/{id}/password-reset", a.handleAdminPasswordReset).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id}", a.handleAdminUpdateUser).Methods(http.MethodPatch)

	return a
}

// Handler returns the full middleware chain around the router. The route
// guard sits directly in front of the router so its coarse cookie check runs
// before any protected handler.
func (a *API) Handler() http.Handler {
	h := a.guard.Middleware(a.router)
	h = RequestID(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.corsOrigin)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "callsign-portal-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
