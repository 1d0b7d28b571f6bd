// Package assistant wires classification, rendering, generative fallback and
// personalization into one request pipeline.
package assistant

import (
	"context"
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/format"
	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/intent"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/ledger"
	"github.com/dvloznov/bank-assistant/internal/personalize"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a step of the request pipeline.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateClassified   State = "CLASSIFIED"
	StateMatched      State = "MATCHED"
	StateUnmatched    State = "UNMATCHED"
	StateRendered     State = "RENDERED"
	StatePersonalized State = "PERSONALIZED"
	StateDone         State = "DONE"
)

const publishTimeout = 2 * time.Second

// Result describes how a response was produced.
type Result struct {
	Response     string
	Intent       intent.Intent
	Matched      bool
	Personalized bool
	// Stage is set when the generative fallback ran.
	Stage  generation.Stage
	States []State
}

// Config holds the collaborators of an Assistant. Zero fields get
// defaults; a nil Repository serves the demo ledger.
type Config struct {
	Repository   ledger.Repository
	Classifier   *intent.Classifier
	Formatter    *format.Formatter
	Chain        *generation.Chain
	Personalizer *personalize.Personalizer
	// Archiver receives every finished exchange when set.
	Archiver jobs.Publisher
	Window   int
	Logger   zerolog.Logger
}

// Assistant answers banking queries. It is safe for concurrent use as long
// as each session has a single writer.
type Assistant struct {
	repo         ledger.Repository
	classifier   *intent.Classifier
	formatter    *format.Formatter
	chain        *generation.Chain
	personalizer *personalize.Personalizer
	archiver     jobs.Publisher
	window       int
	log          zerolog.Logger
}

// New creates an Assistant.
func New(cfg Config) *Assistant {
	a := &Assistant{
		repo:         cfg.Repository,
		classifier:   cfg.Classifier,
		formatter:    cfg.Formatter,
		chain:        cfg.Chain,
		personalizer: cfg.Personalizer,
		archiver:     cfg.Archiver,
		window:       cfg.Window,
		log:          cfg.Logger.With().Str("component", "assistant").Logger(),
	}
	if a.repo == nil {
		a.repo = ledger.Demo()
	}
	if a.classifier == nil {
		a.classifier = intent.NewDefault()
	}
	if a.formatter == nil {
		a.formatter = format.NewDefault()
	}
	if a.chain == nil {
		a.chain = generation.NewChain(nil, nil, generation.DefaultParams, cfg.Logger)
	}
	if a.personalizer == nil {
		a.personalizer = personalize.New(personalize.OverrideAll, nil, nil)
	}
	if a.window <= 0 {
		a.window = session.DefaultWindow
	}
	return a
}

// Classify exposes the intent classifier.
func (a *Assistant) Classify(query string) (intent.Intent, bool) {
	return a.classifier.Classify(query)
}

// Respond answers query for userID. It never fails; the worst case is the
// apology text. When sess is non-nil the exchange is appended to it.
func (a *Assistant) Respond(ctx context.Context, query, userID string, sess *session.Session) string {
	return a.RespondTrace(ctx, query, userID, sess).Response
}

// RespondTrace is Respond with the pipeline trace.
func (a *Assistant) RespondTrace(ctx context.Context, query, userID string, sess *session.Session) Result {
	var res Result
	log := a.log.With().Str("user_id", userID).Logger()
	if sess != nil {
		log = log.With().Str("session_id", sess.ID()).Logger()
	}

	step := func(s State) {
		res.States = append(res.States, s)
		log.Debug().Str("state", string(s)).Msg("Pipeline transition")
	}

	step(StateReceived)
	acc := a.repo.Lookup(userID)

	in, ok := a.classifier.Classify(query)
	res.Intent, res.Matched = in, ok
	step(StateClassified)

	var (
		computed string
		src      personalize.Source
	)
	if ok {
		step(StateMatched)
		computed = a.formatter.Format(in, acc)
		src = personalize.SourceIntent
	} else {
		step(StateUnmatched)
		var window []domain.Turn
		if sess != nil {
			window = sess.RecentWindow(a.window)
		}
		out := a.chain.Run(ctx, window, query)
		computed, res.Stage = out.Text, out.Stage
		src = personalize.SourceFallback
	}
	step(StateRendered)

	res.Response, res.Personalized = a.personalizer.Apply(query, acc.Name, computed, src)
	step(StatePersonalized)
	step(StateDone)

	turnIndex := 0
	if sess != nil {
		turnIndex = sess.Len()
		sess.Append(domain.Turn{Role: domain.RoleUser, Content: query})
		sess.Append(domain.Turn{Role: domain.RoleAssistant, Content: res.Response})
	}
	a.archive(ctx, log, sess, acc.ID, query, turnIndex, res)

	log.Info().
		Str("intent", string(res.Intent)).
		Bool("matched", res.Matched).
		Str("stage", string(res.Stage)).
		Bool("personalized", res.Personalized).
		Msg("Query answered")
	return res
}

func (a *Assistant) archive(ctx context.Context, log zerolog.Logger, sess *session.Session, userID, query string, turnIndex int, res Result) {
	if a.archiver == nil {
		return
	}

	job := &jobs.ArchiveTurnsJob{
		JobID:     uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Response:  res.Response,
		Intent:    string(res.Intent),
		Matched:   res.Matched,
		TurnIndex: turnIndex,
		At:        time.Now(),
	}
	if sess != nil {
		job.SessionID = sess.ID()
	} else {
		job.SessionID = "oneshot-" + job.JobID
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.archiver.PublishArchiveTurns(pubCtx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to publish archive job")
	}
}
