package support

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, int64(100), config.SnapshotThreshold)
	assert.Equal(t, uint(3), config.ExecuteAttempts)
	assert.Equal(t, 5*time.Second, config.ExecuteTimeout)
	assert.Equal(t, 250*time.Millisecond, config.RelayInterval)
	assert.Equal(t, 100, config.RelayBatchSize)
	assert.Equal(t, uint(5), config.ProjectionAttempts)
	assert.Equal(t, 100*time.Millisecond, config.ProjectionDelay)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("EBB_SNAPSHOT_THRESHOLD", "25")
	t.Setenv("EBB_EXECUTE_ATTEMPTS", "6")
	t.Setenv("EBB_RELAY_INTERVAL", "1s")

	config, err := Load()

	assert.Nil(t, err)
	assert.Equal(t, int64(25), config.SnapshotThreshold)
	assert.Equal(t, uint(6), config.ExecuteAttempts)
	assert.Equal(t, time.Second, config.RelayInterval)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("EBB_EXECUTE_TIMEOUT", "soon")

	_, err := Load()
	assert.NotNil(t, err)
}
