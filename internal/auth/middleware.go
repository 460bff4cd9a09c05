package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/models"
)

// Context keys for authentication
type contextKey string

// ClaimsContextKey is the context key for the validated session claims
const ClaimsContextKey contextKey = "claims"

// AccountProvisioner creates the usage account with its starting credit grant
// the first time a user shows up.
type AccountProvisioner interface {
	EnsureAccount(ctx context.Context, userID, email string) (*models.UsageAccount, error)
}

// AuthMiddleware holds dependencies for authentication middleware
type AuthMiddleware struct {
	jwtService *JWTService
	accounts   AccountProvisioner
	logger     zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *JWTService, accounts AccountProvisioner, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		accounts:   accounts,
		logger:     logger.With().Str("middleware", "auth").Logger(),
	}
}

// Authenticate validates the bearer token and provisions the usage account
// on first sight.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		if _, err := m.accounts.EnsureAccount(r.Context(), claims.UserID, claims.Email); err != nil {
			m.logger.Error().Err(err).Str("user_id", claims.UserID).Msg("failed to provision usage account")
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":   "internal_error",
				"message": "Failed to load account",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose session lacks the admin role. Must run
// after Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			writeAuthError(w, ErrInvalidToken)
			return
		}
		if claims.Role != RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate extracts and validates the bearer token
func (m *AuthMiddleware) authenticate(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrInvalidToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrInvalidToken
	}

	return m.jwtService.Validate(parts[1])
}

// GetClaims returns the session claims from context
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID returns the authenticated user ID from context
func GetUserID(ctx context.Context) string {
	claims := GetClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// writeAuthError writes an authentication error response
func writeAuthError(w http.ResponseWriter, err error) {
	message := "Authentication required"

	switch err {
	case ErrExpiredToken:
		message = "Token has expired"
	case ErrInvalidToken:
		message = "Invalid authentication token"
	case ErrTokenNotYetValid:
		message = "Token is not yet valid"
	}

	writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
		"error":   "unauthorized",
		"message": message,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
