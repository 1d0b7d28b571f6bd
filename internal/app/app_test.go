package app

import (
	"bytes"
	"context"
	"flag"
	"testing"
	"time"

	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "GCP_PROJECT", "BQ_DATASET",
		"NOTION_TOKEN", "NOTION_DB_ID", "LEDGER_SOURCE", "SYSTEM_PROMPT_FILE",
		"DATABASE_URL", "TELEGRAM_USERS",
	} {
		t.Setenv(key, "")
	}
	cfg, err := config.Load(flag.NewFlagSet("test", flag.ContinueOnError), args)
	require.NoError(t, err)
	return cfg
}

func TestApp_AnswersAndArchivesOffline(t *testing.T) {
	buf := &bytes.Buffer{}
	log := zerolog.New(buf).Level(zerolog.DebugLevel)
	cfg := offlineConfig(t, "-queue-workers", "1")

	ctx := context.Background()
	a, err := New(ctx, cfg, log)
	require.NoError(t, err)
	assert.Nil(t, a.Archive)
	assert.Contains(t, buf.String(), "No Gemini API key configured")

	require.NoError(t, a.Start(ctx))

	var answer string
	sess := a.Sessions.WithSession("", func(s *session.Session) {
		answer = a.Assistant.Respond(ctx, "what is my balance", "", s)
	})
	assert.Contains(t, answer, "balance")

	unmatched := a.Assistant.Respond(ctx, "tell me a joke", "", nil)
	assert.Equal(t, generation.Apology, unmatched)

	require.NoError(t, a.Shutdown(ctx))

	done, err := a.Jobs.ListJobs(ctx, jobs.JobFilter{SessionID: sess.ID()})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, jobs.JobStatusCompleted, done[0].Status)
	assert.Contains(t, buf.String(), "Archived turn")
}

func TestApp_ShutdownWithoutStart(t *testing.T) {
	cfg := offlineConfig(t)
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Shutdown(ctx))
}

func TestApp_BadLedgerSource(t *testing.T) {
	cfg := offlineConfig(t, "-ledger", "/does/not/exist.json")
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "loading ledger")
}

func TestGuard(t *testing.T) {
	gen := generation.GeneratorFunc(func(ctx context.Context, prompt string, p generation.Params) (string, error) {
		return "ok", nil
	})

	for _, serialize := range []bool{false, true} {
		cfg := &config.Config{Serialize: serialize, MaxConcurrent: 2, GenerationTimeout: time.Second}
		out, err := guard(gen, cfg).Generate(context.Background(), "p", generation.DefaultParams)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
}
