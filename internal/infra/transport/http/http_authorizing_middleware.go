package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	context_ "github.com/mkrupp/homecase-filevault/internal/infra/context"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (domain.AuthToken, error)
}

// AuthorizingMiddleware creates middleware that validates authentication tokens.
// Requests without a valid bearer token in the Authorization header are
// rejected with 401. On success the user id is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	validator TokenValidator,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			log.WarnContext(r.Context(), "no token provided", "error", domain.ErrNoAuthToken)
			unauthorized(w)

			return
		}

		claims, err := validator.ValidateToken(r.Context(), token)
		if err != nil {
			log.WarnContext(r.Context(), "validate token failed", "error", err)
			unauthorized(w)

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithUserID(r.Context(), claims.UserID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
