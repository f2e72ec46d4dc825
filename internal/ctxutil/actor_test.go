package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voicelocal/voicelocal/internal/models"
)

func TestActorRoundTrip(t *testing.T) {
	assert.Nil(t, ActorFromContext(context.Background()))

	u := &models.User{ID: "u1", DisplayName: "One"}
	ctx := WithActor(context.Background(), u)
	assert.Same(t, u, ActorFromContext(ctx))
}
