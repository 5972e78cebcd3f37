package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/logging"
)

func TestNew(t *testing.T) {
	logger, err := logging.New("debug", "production")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = logging.New("warn", "development")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	_, err = logging.New("loud", "production")
	assert.Error(t, err)
}
