package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/tracing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	p, err := tracing.Init(context.Background(), tracing.Config{ServiceName: "care-api"})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}
