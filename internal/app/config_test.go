package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxLifetime)
	assert.Equal(t, 1000, cfg.AuditBufferCapacity)
	assert.InDelta(t, 0.01, cfg.LedgerTolerance, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileCacheTTL)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsTTLAboveCeiling(t *testing.T) {
	t.Setenv("SESSION_TTL", "30h")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_TOLERANCE", "0.5")
	t.Setenv("COA_MAPPING_FILE", "/etc/hera/coa.yaml")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.InDelta(t, 0.5, cfg.LedgerTolerance, 1e-9)
	assert.Equal(t, "/etc/hera/coa.yaml", cfg.COAMappingFile)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "test"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"env":"test"`)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestValidateScheduledReconcile(t *testing.T) {
	cfg := &Config{
		PGDSN:               "postgres://x",
		SessionTTL:          time.Hour,
		SessionMaxLifetime:  2 * time.Hour,
		AuditBufferCapacity: 10,
		WorkerConcurrency:   1,
		JobTimeout:          time.Minute,
		ReconcileCron:       "0 2 * * *",
	}
	assert.Error(t, cfg.Validate(), "system actor required")

	cfg.SystemActorID = "7f9c1f2e-6f0b-4a7e-9f5d-1f8f2a3b4c5d"
	cfg.ReconcileOrganizations = []string{"not-a-uuid"}
	assert.Error(t, cfg.Validate())

	cfg.ReconcileOrganizations = []string{"0b7e2d4c-1a2b-4c3d-8e9f-a0b1c2d3e4f5"}
	assert.NoError(t, cfg.Validate())
}
