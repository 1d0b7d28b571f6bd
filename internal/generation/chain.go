package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// Apology is returned when every fallback stage fails.
const Apology = "I'm sorry, I couldn't process that request right now. " +
	"I can help with balances, transactions, cards, loans, or transfers. Please clarify."

// bankingKeywords gates acceptance of the domain-tuned stage output.
var bankingKeywords = []string{"account", "balance", "loan", "card", "transaction"}

var errNoGenerator = errors.New("generator not configured")

// Stage identifies which step of the chain produced a response.
type Stage string

const (
	StageDomain  Stage = "domain"
	StageGeneral Stage = "general"
	StageApology Stage = "apology"
)

// Outcome is the result of running the chain.
type Outcome struct {
	Text  string
	Stage Stage
}

// Chain runs the domain-tuned generator, then the general-purpose one, then
// falls back to Apology. A Chain is safe for concurrent use when its
// generators are.
type Chain struct {
	domain  Generator
	general Generator
	params  Params
	log     zerolog.Logger
}

// NewChain creates a fallback chain. Either generator may be nil, in which
// case its stage always fails.
func NewChain(domainGen, generalGen Generator, params Params, log zerolog.Logger) *Chain {
	return &Chain{
		domain:  domainGen,
		general: generalGen,
		params:  params,
		log:     log.With().Str("component", "fallback_chain").Logger(),
	}
}

// Run produces a response for query conditioned on window. It never fails.
func (c *Chain) Run(ctx context.Context, window []domain.Turn, query string) Outcome {
	prompt := BuildPrompt(window, query)

	text, err := c.call(ctx, StageDomain, c.domain, prompt)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("stage", string(StageDomain)).Msg("Generation failed, trying next stage")
	case text == "":
		c.log.Debug().Str("stage", string(StageDomain)).Msg("Empty output, trying next stage")
	case !HasBankingKeyword(text):
		c.log.Debug().Str("stage", string(StageDomain)).Msg("Output not banking related, trying next stage")
	default:
		return Outcome{Text: text, Stage: StageDomain}
	}

	text, err = c.call(ctx, StageGeneral, c.general, prompt)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("stage", string(StageGeneral)).Msg("Generation failed, returning apology")
	case text == "":
		c.log.Debug().Str("stage", string(StageGeneral)).Msg("Empty output, returning apology")
	default:
		return Outcome{Text: text, Stage: StageGeneral}
	}

	return Outcome{Text: Apology, Stage: StageApology}
}

// call invokes g, converting panics into errors and trimming the output.
func (c *Chain) call(ctx context.Context, stage Stage, g Generator, prompt string) (text string, err error) {
	if g == nil {
		return "", errNoGenerator
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%s generator panicked: %v", stage, r)
		}
	}()

	out, err := g.Generate(ctx, prompt, c.params)
	if err != nil {
		return "", fmt.Errorf("%s generator: %w", stage, err)
	}
	return strings.TrimSpace(out), nil
}

// HasBankingKeyword reports whether text mentions a banking term.
func HasBankingKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range bankingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
