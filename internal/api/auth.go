package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePractitioner Role = "Practitioner"
	RolePatient      Role = "Patient"
)

// Identity is the caller extracted from the bearer token. Token issuance
// belongs to the auth service; this layer only verifies and reads claims.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

const identityKey contextKey = "identity"

// Authenticator verifies the HS256 bearer token and stores the caller's
// identity in the request context. Websocket clients pass the token as a
// query parameter since browsers cannot set headers on the upgrade request.
func Authenticator(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing_token", "authorization required")
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "unexpected claims")
				return
			}

			sub, _ := claims["sub"].(string)
			userID, err := uuid.Parse(sub)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "sub must be a valid UUID")
				return
			}

			role, _ := claims["role"].(string)
			if role != string(RolePractitioner) && role != string(RolePatient) {
				writeError(w, http.StatusUnauthorized, "invalid_token", "unknown role claim")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, Identity{UserID: userID, Role: Role(role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route to one role.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok || id.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", "this endpoint requires the "+string(role)+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
