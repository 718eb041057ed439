package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AlibekovAA/session-guard/internal/auth/service"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
	commonhttp "github.com/AlibekovAA/session-guard/internal/common/http"
	"github.com/AlibekovAA/session-guard/internal/common/jwtverify"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

type Config struct {
	RequestTimeout time.Duration
	JWTSecret      string
	InternalAPIKey string
	CookieSecure   bool
}

type Handler struct {
	sessions *service.SessionService
	errors   *commonhttp.ErrorHandler
	cfg      Config
	log      *logger.Logger
}

// NewRouter wires the public refresh API, the bearer-protected session
// management API and the internal routes. auditStream may be nil.
func NewRouter(
	sessions *service.SessionService,
	auditStream http.Handler,
	health map[string]commonhttp.HealthCheck,
	cfg Config,
	log *logger.Logger,
) *mux.Router {
	h := &Handler{
		sessions: sessions,
		errors:   commonhttp.NewErrorHandler(log),
		cfg:      cfg,
		log:      log,
	}

	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	router.HandleFunc("/health", commonhttp.HealthHandler(health)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	auth := router.PathPrefix("/api/auth").Subrouter()
	auth.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	protected := auth.PathPrefix("/sessions").Subrouter()
	protected.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	protected.Use(jwtverify.Middleware(cfg.JWTSecret, log))
	protected.HandleFunc("", h.listSessions).Methods(http.MethodGet)
	protected.HandleFunc("/revoke-all", h.revokeAllSessions).Methods(http.MethodPost)
	protected.HandleFunc("/{familyID}", h.revokeSession).Methods(http.MethodDelete)

	internal := router.PathPrefix("/internal").Subrouter()
	internal.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	internal.Use(h.requireInternalKey)
	internal.HandleFunc("/sessions", h.startSession).Methods(http.MethodPost)
	if auditStream != nil {
		internal.Handle("/audit/stream", auditStream).Methods(http.MethodGet)
	}

	return router
}

func (h *Handler) requireInternalKey(next http.Handler) http.Handler {
	expected := []byte(h.cfg.InternalAPIKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := []byte(r.Header.Get(constants.InternalAPIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			h.log.WithFields(r.Context(), logger.Fields{
				"path":   r.URL.Path,
				"ip":     commonhttp.GetClientIP(r),
				"action": "internal_key_rejected",
			}).Warn("internal api call rejected")
			commonhttp.WriteErrorEnvelope(w, http.StatusForbidden, commonhttp.CodeForbidden, "forbidden", nil, commonhttp.TraceIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	commonhttp.WriteErrorEnvelope(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed", nil, commonhttp.TraceIDFromContext(r.Context()))
}
