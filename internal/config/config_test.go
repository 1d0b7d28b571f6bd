package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/personalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, generation.DefaultParams, cfg.Params())
	assert.Equal(t, personalize.OverrideAll, cfg.PersonalizationPolicy())
	assert.Equal(t, "₹", cfg.CurrencySymbol)
	assert.Equal(t, 3, cfg.HistoryWindow)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdle)
	assert.Equal(t, "chat_turns", cfg.BQTable)
	assert.False(t, cfg.BigQueryEnabled())
	assert.False(t, cfg.NotionEnabled())
	assert.Equal(t, generation.BankingInstruction, cfg.BankingInstruction())
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PERSONALIZATION_POLICY", "fallback_only")
	t.Setenv("GEN_TIMEOUT", "5s")

	cfg, err := Load(newFlagSet(), []string{"-port", "9100", "-project", "p", "-dataset", "bank", "-top-p", "0.5"})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, personalize.FallbackOnly, cfg.PersonalizationPolicy())
	assert.Equal(t, 5*time.Second, cfg.GenerationTimeout)
	assert.InDelta(t, 0.5, float64(cfg.Params().TopP), 1e-6)
	assert.True(t, cfg.BigQueryEnabled())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("GEN_MAX_LENGTH", "lots")
	_, err := Load(newFlagSet(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEN_MAX_LENGTH")
}

func TestLoad_SystemPromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  You answer for Acme Bank.\n"), 0o600))

	cfg, err := Load(newFlagSet(), []string{"-system-prompt-file", path})
	require.NoError(t, err)
	assert.Equal(t, "You answer for Acme Bank.", cfg.BankingInstruction())

	blank := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte(" \n"), 0o600))
	_, err = Load(newFlagSet(), []string{"-system-prompt-file", blank})
	assert.ErrorContains(t, err, "is empty")

	_, err = Load(newFlagSet(), []string{"-system-prompt-file", filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Register(newFlagSet())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = "http" }, "valid TCP port"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "valid TCP port"},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }, "invalid log level"},
		{"bad policy", func(c *Config) { c.Policy = "never" }, "personalization policy"},
		{"temperature", func(c *Config) { c.Temperature = 3 }, "temperature"},
		{"top-p zero", func(c *Config) { c.TopP = 0 }, "top-p"},
		{"max length", func(c *Config) { c.MaxLength = 0 }, "max-length"},
		{"timeout", func(c *Config) { c.GenerationTimeout = 0 }, "generation-timeout"},
		{"concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "max-concurrent"},
		{"dataset without project", func(c *Config) { c.BQDataset = "bank" }, "needs a project"},
		{"notion half configured", func(c *Config) { c.NotionToken = "secret" }, "set together"},
		{"queue workers", func(c *Config) { c.QueueWorkers = 0 }, "queue-workers"},
		{"telegram users", func(c *Config) { c.TelegramUsers = "alice" }, "telegram-users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTelegramUsers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[int64]string
		wantErr string
	}{
		{"empty", "", map[int64]string{}, ""},
		{"pairs", "12345=user_001, 67890=user_2,", map[int64]string{12345: "user_001", 67890: "user_2"}, ""},
		{"missing user", "12345=", nil, "not id=user"},
		{"no separator", "12345", nil, "not id=user"},
		{"bad id", "abc=user_001", nil, "bad telegram id"},
		{"duplicate", "1=a,1=b", nil, "listed twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTelegramUsers(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_ArchiveAndTelegramEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://bank@localhost/bank")
	t.Setenv("TELEGRAM_USERS", "42=user_2")

	cfg, err := Load(newFlagSet(), nil)
	require.NoError(t, err)

	assert.True(t, cfg.PostgresEnabled())
	assert.Equal(t, map[int64]string{42: "user_2"}, cfg.TelegramAccounts())
}
