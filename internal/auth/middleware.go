package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/hackgods/clinic-appointments/auth")

// MetricsRecorder counts rejected requests by reason.
type MetricsRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
}

// Middleware builds the Principal from identity headers. Requests without
// a valid user id and role are rejected with 401.
func Middleware(metrics MetricsRecorder, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "auth.Middleware")
			defer span.End()

			fail := func(reason, msg string) {
				span.SetStatus(codes.Error, reason)
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, reason)
				}
				log.Debug().Str("reason", reason).Str("path", r.URL.Path).Msg("request rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized", msg)
			}

			rawID := r.Header.Get(HeaderUserID)
			if rawID == "" {
				fail("missing_identity", "missing "+HeaderUserID+" header")
				return
			}
			id, err := uuid.Parse(rawID)
			if err != nil {
				fail("invalid_identity", HeaderUserID+" must be a uuid")
				return
			}
			role, ok := parseRole(r.Header.Get(HeaderUserRole))
			if !ok {
				fail("invalid_role", HeaderUserRole+" must be one of PATIENT, DOCTOR, ADMIN, SERVICE")
				return
			}

			pr := &Principal{UserID: id, Role: role, Email: r.Header.Get(HeaderUserEmail)}
			span.SetAttributes(
				attribute.String("user.id", id.String()),
				attribute.String("user.role", string(role)),
			)

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, pr)))
		})
	}
}

// RequirePermission returns middleware that ensures the principal has permission.
func RequirePermission(permission string, perms Permissions, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pr, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthenticated")
				return
			}
			if !perms.Allows(pr.Role, permission) {
				log.Warn().
					Str("user_id", pr.UserID.String()).
					Str("role", string(pr.Role)).
					Str("permission", permission).
					Msg("permission denied")
				writeError(w, http.StatusForbidden, "forbidden", "missing permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "details": details})
}
