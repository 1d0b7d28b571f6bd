package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/format"
	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/intent"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/ledger"
	"github.com/dvloznov/bank-assistant/internal/personalize"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockArchiver struct {
	PublishFunc func(ctx context.Context, job *jobs.ArchiveTurnsJob) error

	mu   sync.Mutex
	jobs []*jobs.ArchiveTurnsJob
}

func (m *MockArchiver) PublishArchiveTurns(ctx context.Context, job *jobs.ArchiveTurnsJob) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	return nil
}

func (m *MockArchiver) Close() error { return nil }

type recordingGenerator struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []string
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string, p generation.Params) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.text, g.err
}

var fixedNow = func() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC) }

func newAssistant(t *testing.T, domainGen, generalGen generation.Generator, policy personalize.Policy, archiver jobs.Publisher, log zerolog.Logger) *Assistant {
	t.Helper()
	cfg := Config{
		Repository:   ledger.Demo(),
		Formatter:    format.New(domain.DefaultCurrencySymbol, fixedNow),
		Chain:        generation.NewChain(domainGen, generalGen, generation.DefaultParams, log),
		Personalizer: personalize.New(policy, rand.New(rand.NewPCG(1, 2)), fixedNow),
		Logger:       log,
	}
	if archiver != nil {
		cfg.Archiver = archiver
	}
	return New(cfg)
}

var failing = &recordingGenerator{err: errors.New("model unavailable")}

func TestRespond_MatchedIntent(t *testing.T) {
	a := newAssistant(t, failing, failing, personalize.OverrideAll, nil, zerolog.Nop())
	sess := session.New("s1")

	res := a.RespondTrace(context.Background(), "What is my balance?", "default", sess)

	assert.True(t, res.Matched)
	assert.Equal(t, intent.Balance, res.Intent)
	assert.True(t, strings.HasPrefix(res.Response, "### Account Balance"))
	assert.Contains(t, res.Response, "Last updated: Oct 16, 2026 10:00 AM")
	assert.Empty(t, res.Stage)
	assert.Equal(t, []State{StateReceived, StateClassified, StateMatched, StateRendered, StatePersonalized, StateDone}, res.States)

	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Content: "What is my balance?"}, turns[0])
	assert.Equal(t, domain.Turn{Role: domain.RoleAssistant, Content: res.Response}, turns[1])
}

func TestRespond_UnknownUserIsDeterministic(t *testing.T) {
	a := newAssistant(t, failing, failing, personalize.OverrideAll, nil, zerolog.Nop())
	ctx := context.Background()

	for _, q := range []string{"balance", "show my cards", "loan details", "recent transactions"} {
		want := a.Respond(ctx, q, ledger.DefaultUserID, nil)
		assert.Equal(t, want, a.Respond(ctx, q, "no-such-user", nil), q)
		assert.Equal(t, want, a.Respond(ctx, q, "", nil), q)
	}
}

func TestRespond_KnownUsersDiffer(t *testing.T) {
	a := newAssistant(t, failing, failing, personalize.OverrideAll, nil, zerolog.Nop())
	ctx := context.Background()

	assert.NotEqual(t,
		a.Respond(ctx, "balance", "default", nil),
		a.Respond(ctx, "balance", "user_2", nil))
}

func TestRespond_BothStagesFailReturnsApology(t *testing.T) {
	buf := &bytes.Buffer{}
	log := zerolog.New(buf).Level(zerolog.DebugLevel)
	a := newAssistant(t, failing, &recordingGenerator{text: "   "}, personalize.OverrideAll, nil, log)

	res := a.RespondTrace(context.Background(), "tell me a joke", "default", session.New("s"))

	assert.Equal(t, generation.Apology, res.Response)
	assert.False(t, res.Matched)
	assert.Equal(t, generation.StageApology, res.Stage)
	assert.Equal(t, []State{StateReceived, StateClassified, StateUnmatched, StateRendered, StatePersonalized, StateDone}, res.States)
	assert.Equal(t, StateDone, res.States[len(res.States)-1])
	assert.Contains(t, buf.String(), `"state":"DONE"`)
}

func TestRespond_FallbackStages(t *testing.T) {
	tests := []struct {
		name      string
		domain    generation.Generator
		general   generation.Generator
		wantText  string
		wantStage generation.Stage
	}{
		{
			name:      "domain answer on topic",
			domain:    &recordingGenerator{text: "Your account statement is emailed monthly."},
			general:   failing,
			wantText:  "Your account statement is emailed monthly.",
			wantStage: generation.StageDomain,
		},
		{
			name:      "domain off topic falls to general",
			domain:    &recordingGenerator{text: "Bananas are yellow."},
			general:   &recordingGenerator{text: "Here is a joke."},
			wantText:  "Here is a joke.",
			wantStage: generation.StageGeneral,
		},
		{
			name:      "nil generators",
			wantText:  generation.Apology,
			wantStage: generation.StageApology,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAssistant(t, tt.domain, tt.general, personalize.OverrideAll, nil, zerolog.Nop())
			res := a.RespondTrace(context.Background(), "tell me a joke", "default", nil)
			assert.Equal(t, tt.wantText, res.Response)
			assert.Equal(t, tt.wantStage, res.Stage)
		})
	}
}

func TestRespond_FallbackUsesRecentWindow(t *testing.T) {
	domainGen := &recordingGenerator{text: "Your account is in good standing."}
	a := newAssistant(t, domainGen, failing, personalize.OverrideAll, nil, zerolog.Nop())

	history := make([]domain.Turn, 5)
	for i := range history {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history[i] = domain.Turn{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}
	sess := session.FromHistory("s", history)

	a.Respond(context.Background(), "what should I do next", "default", sess)

	require.Len(t, domainGen.prompts, 1)
	prompt := domainGen.prompts[0]
	assert.NotContains(t, prompt, "turn 0")
	assert.NotContains(t, prompt, "turn 1")
	assert.Contains(t, prompt, "user: turn 2\nassistant: turn 3\nuser: turn 4\n")
	assert.True(t, strings.HasSuffix(prompt, "user: what should I do next\nassistant:"))
	assert.Equal(t, 7, sess.Len())
}

func TestRespond_GratitudeUnderBothPolicies(t *testing.T) {
	ctx := context.Background()
	acks := personalize.Acknowledgements("Alex")

	for _, policy := range []personalize.Policy{personalize.OverrideAll, personalize.FallbackOnly} {
		t.Run(string(policy), func(t *testing.T) {
			a := newAssistant(t, failing, failing, policy, nil, zerolog.Nop())
			res := a.RespondTrace(ctx, "thanks!", "default", nil)
			assert.True(t, res.Personalized)
			assert.Contains(t, acks, res.Response)
		})
	}
}

func TestRespond_PrecedenceOnMatchedIntent(t *testing.T) {
	ctx := context.Background()
	query := "thanks, what's my balance"

	all := newAssistant(t, failing, failing, personalize.OverrideAll, nil, zerolog.Nop())
	res := all.RespondTrace(ctx, query, "user_2", nil)
	assert.Contains(t, personalize.Acknowledgements("Priya"), res.Response)
	assert.True(t, res.Matched)

	fallbackOnly := newAssistant(t, failing, failing, personalize.FallbackOnly, nil, zerolog.Nop())
	res = fallbackOnly.RespondTrace(ctx, query, "user_2", nil)
	assert.False(t, res.Personalized)
	assert.True(t, strings.HasPrefix(res.Response, "### Account Balance"))
}

func TestRespond_PublishesArchiveJob(t *testing.T) {
	archiver := &MockArchiver{}
	a := newAssistant(t, failing, failing, personalize.OverrideAll, archiver, zerolog.Nop())
	sess := session.FromHistory("conv-9", []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	})

	resp := a.Respond(context.Background(), "show my cards", "someone-unknown", sess)

	require.Len(t, archiver.jobs, 1)
	job := archiver.jobs[0]
	assert.Equal(t, "conv-9", job.SessionID)
	assert.Equal(t, ledger.DefaultUserID, job.UserID)
	assert.Equal(t, "show my cards", job.Query)
	assert.Equal(t, resp, job.Response)
	assert.Equal(t, string(intent.Cards), job.Intent)
	assert.True(t, job.Matched)
	assert.Equal(t, 2, job.TurnIndex)
	assert.False(t, job.At.IsZero())
}

func TestRespond_PublishFailureIsOnlyLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	archiver := &MockArchiver{PublishFunc: func(context.Context, *jobs.ArchiveTurnsJob) error {
		return jobs.ErrQueueClosed
	}}
	a := newAssistant(t, failing, failing, personalize.OverrideAll, archiver, zerolog.New(buf))

	resp := a.Respond(context.Background(), "balance", "default", session.New("s"))

	assert.True(t, strings.HasPrefix(resp, "### Account Balance"))
	assert.Contains(t, buf.String(), "Failed to publish archive job")
	assert.Contains(t, buf.String(), jobs.ErrQueueClosed.Error())
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{Logger: zerolog.Nop()})

	in, ok := a.Classify("send money to mom")
	assert.True(t, ok)
	assert.Equal(t, intent.Transfer, in)

	assert.Equal(t, generation.Apology, a.Respond(context.Background(), "what's the weather", "", nil))
	assert.Equal(t, session.DefaultWindow, a.window)
	assert.Equal(t, ledger.Demo().Lookup("").Name, a.repo.Lookup("").Name)
}

func TestRespond_ArchivedTurnIDsNeverRepeat(t *testing.T) {
	archiver := &MockArchiver{}
	a := newAssistant(t, failing, failing, personalize.OverrideAll, archiver, zerolog.Nop())
	sessions := session.NewManager(time.Minute)
	ctx := context.Background()

	exchange := func(id string) {
		sessions.WithSession(id, func(s *session.Session) {
			a.Respond(ctx, "balance", "", s)
		})
	}

	exchange("tg-1")
	sessions.End("tg-1")
	exchange("tg-1")
	a.Respond(ctx, "balance", "", nil)
	a.Respond(ctx, "cards", "", nil)

	require.Len(t, archiver.jobs, 4)
	assert.Equal(t, archiver.jobs[0].TurnIndex, archiver.jobs[1].TurnIndex)
	assert.NotEqual(t, archiver.jobs[2].SessionID, archiver.jobs[3].SessionID)
	assert.True(t, strings.HasPrefix(archiver.jobs[2].SessionID, "oneshot-"))

	seen := map[string]bool{}
	for _, job := range archiver.jobs {
		for _, row := range archive.RowsFromJob(job) {
			assert.False(t, seen[row.TurnID], "turn id %q repeated", row.TurnID)
			seen[row.TurnID] = true
		}
	}
	assert.Len(t, seen, 8)
}
