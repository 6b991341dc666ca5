package httpapi

import (
	"context"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

type contextKey string

const userContextKey contextKey = "user"

// withUser attaches the authenticated user to r's context ("request.state.user_id"
// in the reference implementation's terms).
func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// userFromContext returns the authenticated caller, if the auth middleware
// ran and attached one.
func userFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}
