package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askmesh/askmesh/internal/ask"
	"github.com/askmesh/askmesh/internal/audit"
	"github.com/askmesh/askmesh/internal/auth"
	"github.com/askmesh/askmesh/internal/config"
	"github.com/askmesh/askmesh/internal/contextpack"
	"github.com/askmesh/askmesh/internal/observability"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/sqlguard"
)

const maxRequestBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

// Service is the question answering surface the handlers need. *ask.Service
// satisfies it.
type Service interface {
	Catalog(ctx context.Context) (*schema.Catalog, error)
	Pack(ctx context.Context, question string) (contextpack.Pack, error)
	Translate(ctx context.Context, question ask.Question) (ask.Translation, error)
	Ask(ctx context.Context, question ask.Question) (ask.Answer, error)
	Check(ctx context.Context, sql string, tables []string) (sqlguard.Verdict, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Service           Service
	Audit             audit.Reader
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	queryRoutes := map[string]func(Dependencies, http.ResponseWriter, *http.Request){
		"GET /v1/schema":       handleSchema,
		"POST /v1/context":     handleContext,
		"POST /v1/ask":         handleAsk,
		"POST /v1/translate":   handleTranslate,
		"POST /v1/guard/check": handleGuardCheck,
	}
	for pattern, handle := range queryRoutes {
		protected.Handle(pattern, auth.RequireRole(auth.RoleQueryReader, bind(deps, handle)))
	}
	protected.Handle("GET /v1/audit", auth.RequireRole(auth.RoleAuditReader, bind(deps, handleAuditList)))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range queryRoutes {
		mux.Handle(pattern, protectedHandler)
	}
	mux.Handle("GET /v1/audit", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func bind(deps Dependencies, handle func(Dependencies, http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(deps, w, r)
	})
}

func CheckQueryDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Query.Engine == config.QueryEnginePostgres && cfg.Query.DSN == "" {
			return errors.New("query dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

// CheckCatalog fails until the schema catalog can be loaded.
func CheckCatalog(service Service) ReadinessCheck {
	return func(ctx context.Context) error {
		if service == nil {
			return errors.New("question service is not configured")
		}
		_, err := service.Catalog(ctx)
		return err
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
