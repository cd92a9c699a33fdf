package auth

import (
	"context"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const actorKey contextKey = "actor"

// Middleware rejects requests without a valid bearer token and stores the caller in the context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("authentication required", err.Error(), "unauthenticated"))
				return
			}

			actor, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.LogSecurity("AUTH_FAILED", r.Method+" "+r.URL.Path+": "+err.Error())
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("invalid token", err.Error(), "unauthenticated"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireStaff lets only staff through. Must run after Middleware.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFrom(r.Context()).IsStaff {
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("admin access required", "forbidden", "forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the authenticated caller, or the zero Actor.
func ActorFrom(ctx context.Context) models.Actor {
	if a, ok := ctx.Value(actorKey).(models.Actor); ok {
		return a
	}
	return models.Actor{}
}

// UserID is the authenticated caller's id.
func UserID(ctx context.Context) string {
	return ActorFrom(ctx).UserID
}
