package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultseal/internal/events"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, events.FromContext(context.Background()))
}

func TestWithLogger(t *testing.T) {
	logger := events.NewTestLogger(events.InfoLevel, "text", &bytes.Buffer{})

	ctx := events.WithLogger(context.Background(), logger)
	assert.Same(t, logger, events.FromContext(ctx))
}

func TestWithOperationID(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

	ctx = events.WithOperationID(ctx)
	id := events.GetOperationID(ctx)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	events.FromContext(ctx).Info("working")
	assert.Contains(t, buf.String(), `"op_id":"`+id+`"`)

	other := events.GetOperationID(events.WithOperationID(context.Background()))
	assert.NotEqual(t, id, other)
}

func TestWithSecretName(t *testing.T) {
	var buf bytes.Buffer
	ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "text", &buf))

	ctx = events.WithSecretName(ctx, "stripe/api-key")
	assert.Equal(t, "stripe/api-key", events.GetSecretName(ctx))

	events.FromContext(ctx).Info("opened")
	assert.Contains(t, buf.String(), "secret=stripe/api-key")
}

func TestGettersEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, events.GetOperationID(ctx))
	assert.Empty(t, events.GetSecretName(ctx))
}

func TestSetDefault(t *testing.T) {
	custom := events.NewTestLogger(events.DebugLevel, "text", &bytes.Buffer{})
	events.SetDefault(custom)
	t.Cleanup(func() { events.SetDefault(events.Discard()) })

	assert.Same(t, custom, events.FromContext(context.Background()))
}
