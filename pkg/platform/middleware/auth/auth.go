// Package auth authenticates owners and operators from bearer tokens. Release
// routes are public; beneficiaries prove themselves with release tokens
// instead.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/httputil"
	"keepsake/pkg/requestcontext"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the validator-neutral view of an access token.
type JWTClaims struct {
	Subject string
	Role    string
	JTI     string
}

var (
	errMissingBearer = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")
	errBadBearer     = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
)

// RequireAuth puts the token's subject (as an OwnerID) and role on the
// request context. Operators are owners with the admin role.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(msg string, resp error, attrs ...any) {
				logger.WarnContext(ctx, msg, append(attrs, "request_id", requestcontext.RequestID(ctx))...)
				httputil.WriteError(w, resp)
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				reject("bearer token missing", errMissingBearer)
				return
			}
			claims, err := validator.ValidateToken(raw)
			if err != nil {
				reject("bearer token rejected", errBadBearer, "error", err)
				return
			}
			subject, err := id.ParseOwnerID(claims.Subject)
			if err != nil {
				reject("bearer subject is not an owner id", errBadBearer, "jti", claims.JTI)
				return
			}

			ctx = requestcontext.WithRole(requestcontext.WithOwnerID(ctx, subject), claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole runs after RequireAuth and admits only callers holding role.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if got := requestcontext.Role(ctx); got != role {
				logger.WarnContext(ctx, "role required",
					"required_role", role,
					"role", got,
					"subject", requestcontext.OwnerID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, role+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
