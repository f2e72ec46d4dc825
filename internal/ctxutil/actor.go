// Package ctxutil carries the acting user through a request context.
package ctxutil

import (
	"context"

	"github.com/voicelocal/voicelocal/internal/models"
)

// ActorKey is the context key for the acting user.
type ActorKey struct{}

// WithActor returns a context carrying u.
func WithActor(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ActorKey{}, u)
}

// ActorFromContext returns the acting user, or nil if none is set.
func ActorFromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(ActorKey{}).(*models.User); ok {
		return u
	}
	return nil
}
