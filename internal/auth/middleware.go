package auth

import (
	"context"
	"fmt"
	"ms-admission/internal/logger"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const operatorKey contextKey = "operator_id"

// Middleware verifies bearer tokens against the OIDC issuer and stores the
// caller's subject in the request context. With no issuer configured the
// middleware passes requests through, which is what local development and
// the test suite run with.
func Middleware(issuer string, log *logger.Logger) func(http.Handler) http.Handler {
	if issuer == "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, admin endpoints are unauthenticated")
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		panic(fmt.Sprintf("failed to create OIDC provider: %v", err))
	}

	// SkipClientIDCheck: tokens from any client of the realm are accepted.
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			idToken, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			var claims struct {
				Sub string `json:"sub"`
			}
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "failed to parse claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Operator returns the authenticated caller's subject, or "" when the
// request came through the unauthenticated path.
func Operator(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey).(string); ok {
		return op
	}
	return ""
}
