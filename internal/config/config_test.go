package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/statecraft/internal/calendar"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "statecraft.db", cfg.DBPath)
	assert.Equal(t, 60, cfg.StepMinutes)
	assert.Equal(t, "1", cfg.Multiplier)
	assert.Equal(t, time.Second, cfg.LoopInterval)
	assert.Equal(t, 1.0, cfg.Speed)
	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, "@every 10m", cfg.AutosaveSpec)
	assert.Zero(t, cfg.Seed)

	cal, err := cfg.ResolveCalendar(calendar.Default())
	require.NoError(t, err)
	assert.Equal(t, calendar.Default(), cal)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STATECRAFT_LOG_LEVEL", "debug")
	t.Setenv("STATECRAFT_SEED", "42")
	t.Setenv("STATECRAFT_MULTIPLIER", "1.333")
	t.Setenv("STATECRAFT_LOOP_INTERVAL", "250ms")
	t.Setenv("STATECRAFT_SPEED", "0")
	t.Setenv("STATECRAFT_CALENDAR", "noleap")
	t.Setenv("STATECRAFT_AUTOSAVE", "*/15 * * * *")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.EqualValues(t, 42, cfg.Seed)
	assert.Equal(t, "1.333", cfg.Multiplier)
	assert.Equal(t, 250*time.Millisecond, cfg.LoopInterval)
	assert.Zero(t, cfg.Speed)

	base := calendar.MustNew(calendar.Gregorian, 2030, 6, 1)
	cal, err := cfg.ResolveCalendar(base)
	require.NoError(t, err)
	assert.Equal(t, calendar.NoLeap, cal.Mode())
	assert.Equal(t, 2030, cal.Base().Year)
	assert.Equal(t, 6, cal.Base().Month)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		kind  ErrorKind
		field string
	}{
		{"log level", "STATECRAFT_LOG_LEVEL", "loud", ErrValidation, "LogLevel"},
		{"calendar", "STATECRAFT_CALENDAR", "julian", ErrValidation, "Calendar"},
		{"start date", "STATECRAFT_START_DATE", "2025-13-01", ErrValidation, "StartDate"},
		{"zero multiplier", "STATECRAFT_MULTIPLIER", "0", ErrValidation, "Multiplier"},
		{"bad multiplier", "STATECRAFT_MULTIPLIER", "fast", ErrValidation, "Multiplier"},
		{"negative speed", "STATECRAFT_SPEED", "-1", ErrValidation, "Speed"},
		{"cron", "STATECRAFT_AUTOSAVE", "every so often", ErrValidation, "AutosaveSpec"},
		{"step", "STATECRAFT_STEP_MINUTES", "0", ErrValidation, "StepMinutes"},
		{"unparsable step", "STATECRAFT_STEP_MINUTES", "hourly", ErrParsing, "STATECRAFT_STEP_MINUTES"},
		{"unparsable seed", "STATECRAFT_SEED", "-5", ErrParsing, "STATECRAFT_SEED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			var cerr *Error
			require.True(t, errors.As(err, &cerr), "got %T", err)
			assert.Equal(t, tt.kind, cerr.Kind)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STATECRAFT_DB_PATH=from-file.db\nSTATECRAFT_RATE_BURST=5\n"), 0o600))
	t.Setenv("STATECRAFT_RATE_BURST", "7")
	t.Cleanup(func() { os.Unsetenv("STATECRAFT_DB_PATH") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
	assert.Equal(t, 7, cfg.RateBurst, "process environment wins over the file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrDotenv, cerr.Kind)
}
