package router

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/authz"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/grade"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// Config holds HTTP transport settings.
type Config struct {
	Addr         string
	CookieSecure bool
	PFPDir       string
}

// ConfigFromEnv reads HTTP_ADDR, COOKIE_SECURE and PFP_DIR.
func ConfigFromEnv() Config {
	cfg := Config{Addr: "0.0.0.0:8431", PFPDir: "pfp"}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v, err := strconv.ParseBool(os.Getenv("COOKIE_SECURE")); err == nil {
		cfg.CookieSecure = v
	}
	if v := os.Getenv("PFP_DIR"); v != "" {
		cfg.PFPDir = v
	}
	return cfg
}

// Handlers are the per-domain endpoints mounted under /v1.
type Handlers struct {
	Gate     *authz.Gate
	User     *user.Handler
	Homework *homework.Handler
	Grade    *grade.Handler
	EC       *ec.Handler
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware keeps an incoming X-Request-ID or assigns a ksuid.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = utilities.NewKSUID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// LoggingMiddleware logs requests at debug level. Query strings are left out
// since they are not needed and cookies/headers are never logged.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. API responses
// are never cached since they may carry tokens.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			// HSTS only over TLS
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes builds the chi router for the whole API.
func RegisterRoutes(logger *zap.SugaredLogger, hs Handlers) http.Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger), SecurityHeadersMiddleware())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", hs.User.Login)
			r.Get("/refresh", hs.User.Refresh)
			r.Post("/refresh", hs.User.Refresh)
			r.Post("/logout", hs.User.Logout)
			r.Post("/introspect", hs.User.Introspect)
			r.With(hs.Gate.RequireAccess, authz.RequireRole(authz.RoleAdmin)).Post("/register", hs.User.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(hs.Gate.RequireAccess)
			owner := authz.RequireOwner("uid")
			teacher := authz.RequireRole(authz.RoleTeacher)

			r.With(owner).Get("/user/{uid}", hs.User.Profile)
			r.With(owner).Get("/user/{uid}/pfp", hs.User.ProfilePicture)

			r.With(owner).Get("/homework/{uid}", hs.Homework.List)
			r.With(teacher).Post("/homework", hs.Homework.Create)
			r.With(teacher).Post("/homework/{id}/confirm", hs.Homework.Confirm)

			r.With(owner).Get("/grade/{uid}", hs.Grade.List)

			r.Get("/ec", hs.EC.List)
			r.Post("/ec/join", hs.EC.Join)
			r.With(owner).Get("/ec/attendance/{uid}", hs.EC.Attendance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utilities.WriteError(w, http.StatusNotFound, "not found")
	})
	return r
}
