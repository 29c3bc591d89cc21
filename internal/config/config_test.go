package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Queue.BetTimeout = duration{0}
	cfg.Archive.Enabled = true // without s3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "bet_timeout")
	assert.Contains(t, err.Error(), "s3 must be enabled")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLE_DATABASE_DSN", "postgres://u:p@db/settle")
	t.Setenv("SETTLE_QUEUE_BET_TIMEOUT", "3s")
	t.Setenv("SETTLE_NOTIFY_EVENTS", "market_resolved, bet_placed")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "postgres://u:p@db/settle", cfg.Database.DSN)
	assert.Equal(t, 3*time.Second, cfg.Queue.BetTimeout.Duration)
	assert.Equal(t, []string{"market_resolved", "bet_placed"}, cfg.Notify.Events)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "hunter2", cfg.Database.Password, "original untouched")
}
