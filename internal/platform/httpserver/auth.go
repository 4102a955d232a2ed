package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceRoleClaims is the token shape issued to schedulers and other
// internal callers.
type ServiceRoleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const ServiceRole = "service_role"

var errNotServiceRole = errors.New("token is not a service role token")

// ParseServiceRoleToken validates an HS256 token and checks its role claim.
func ParseServiceRoleToken(tokenString string, secret []byte) (*ServiceRoleClaims, error) {
	claims := &ServiceRoleClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Role != ServiceRole {
		return nil, errNotServiceRole
	}
	return claims, nil
}

// RequireServiceRole rejects requests without a valid service-role bearer token.
func RequireServiceRole(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.WarnContext(r.Context(), "Missing or malformed Authorization header")
				WriteError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			if _, err := ParseServiceRoleToken(token, key); err != nil {
				logger.WarnContext(r.Context(), "Service role token rejected", "error", err)
				WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
