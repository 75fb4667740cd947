package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

// Context keys for middleware
type contextKey string

const (
	RequestIDKey       contextKey = "request_id"
	PermissionLevelKey contextKey = "permission_level"
)

// PermissionClaim is the JWT claim carrying the caller's annotation permission
const PermissionClaim = "permission_level"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request id stored by RequestIDMiddleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// LoggingMiddleware logs each request with its status, size and duration
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "Request handled",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// PermissionMiddleware copies the permission_level claim of a verified token
// into the request context. Requests without the claim pass through unchanged.
func PermissionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || claims == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := claims[PermissionClaim]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		level, err := permissionFromClaim(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", docstore.ErrInvalidIdentifier, err))
			return
		}
		ctx := context.WithValue(r.Context(), PermissionLevelKey, level)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func permissionFromClaim(raw interface{}) (docstore.PermissionLevel, error) {
	switch v := raw.(type) {
	case float64:
		return docstore.PermissionLevel(int(v)), nil
	case int:
		return docstore.PermissionLevel(v), nil
	case string:
		return docstore.ParsePermissionLevel(v)
	default:
		return docstore.PermissionNone, fmt.Errorf("unsupported %s claim type %T", PermissionClaim, raw)
	}
}

// permissionFromContext returns the level set by PermissionMiddleware, if any
func permissionFromContext(ctx context.Context) *docstore.PermissionLevel {
	level, ok := ctx.Value(PermissionLevelKey).(docstore.PermissionLevel)
	if !ok {
		return nil
	}
	return &level
}
