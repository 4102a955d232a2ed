package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("config-test")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.ReconcilerBatchSize)
	assert.Equal(t, 5, cfg.ReconcilerMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.ReconcilerCancelTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReconcilerEarlyCancelDelay)
	assert.Equal(t, 81, cfg.CryptomusGatewayMinimum)
	assert.Equal(t, []string{"paid", "paid_over"}, cfg.CryptomusSuccessStatuses)
	assert.False(t, cfg.CryptomusStrictSignature)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_RECONCILER_BATCH_SIZE", "7")
	t.Setenv("APP_RECONCILER_EARLY_CANCEL_DELAY", "90s")
	t.Setenv("APP_CRYPTOMUS_STRICT_SIGNATURE", "true")

	cfg, err := Load("config-test")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.ReconcilerBatchSize)
	assert.Equal(t, 90*time.Second, cfg.ReconcilerEarlyCancelDelay)
	assert.True(t, cfg.CryptomusStrictSignature)
}
