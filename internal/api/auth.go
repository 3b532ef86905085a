package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicore/slot-booking/internal/booking"
)

const actorKey contextKey = "actor"

// AuthMiddleware validates an HS256 bearer token and stores the resulting
// actor in the request context. The token's sub claim carries the actor's
// UUID and the role claim one of the closed role set; tokens carrying
// anything else are rejected outright, so no handler ever sees an actor
// outside that set.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "bearer token required")
				return
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_claims", "unexpected claim format")
				return
			}

			sub, _ := claims["sub"].(string)
			actorID, err := uuid.Parse(sub)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_claims", "sub must be a UUID")
				return
			}

			roleClaim, _ := claims["role"].(string)
			role, ok := booking.ParseRole(roleClaim)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_claims", "unknown role")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, booking.Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated actor placed by AuthMiddleware.
func ActorFromContext(ctx context.Context) (booking.Actor, bool) {
	a, ok := ctx.Value(actorKey).(booking.Actor)
	return a, ok
}
