// Package intent maps free-text banking questions onto a fixed set of intents.
package intent

import (
	"strings"
	"unicode"
)

// Intent is a banking category a query can be classified into.
type Intent string

const (
	Balance      Intent = "BALANCE"
	Transactions Intent = "TRANSACTIONS"
	Cards        Intent = "CARDS"
	Loans        Intent = "LOANS"
	Transfer     Intent = "TRANSFER"
)

// All lists the intents in priority order.
var All = []Intent{Balance, Transactions, Cards, Loans, Transfer}

// Rule is one row of the classification table: an intent and the lexicon
// that triggers it.
type Rule struct {
	Intent  Intent
	Tokens  []string // single words matched against whole tokens
	Phrases []string // multi-word phrases matched as substrings
}

// DefaultRules is the built-in table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent: Balance,
			Tokens: []string{"balance", "balances", "funds"},
		},
		{
			Intent:  Transactions,
			Tokens:  []string{"transaction", "transactions", "history", "statement", "spent", "spending"},
			Phrases: []string{"recent activity"},
		},
		{
			Intent:  Cards,
			Tokens:  []string{"card", "cards", "debit"},
			Phrases: []string{"credit limit"},
		},
		{
			Intent:  Loans,
			Tokens:  []string{"loan", "loans", "borrow", "emi", "mortgage", "interest"},
			Phrases: []string{"credit score"},
		},
		{
			Intent:  Transfer,
			Tokens:  []string{"transfer", "send", "remit", "pay"},
			Phrases: []string{"transfer money", "send money", "move money"},
		},
	}
}

type compiledRule struct {
	intent  Intent
	tokens  map[string]struct{}
	phrases []string
}

// Classifier is a deterministic lexical intent matcher. It holds no mutable
// state, so one instance can be shared across goroutines.
type Classifier struct {
	rules []compiledRule
}

// New builds a classifier from rules, evaluated in the given order.
func New(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{
			intent: r.Intent,
			tokens: make(map[string]struct{}, len(r.Tokens)),
		}
		for _, tok := range r.Tokens {
			cr.tokens[strings.ToLower(tok)] = struct{}{}
		}
		for _, p := range r.Phrases {
			cr.phrases = append(cr.phrases, strings.ToLower(p))
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// NewDefault builds a classifier over DefaultRules.
func NewDefault() *Classifier {
	return New(DefaultRules())
}

// Classify returns the first intent whose lexicon matches text, and false
// when none does.
func (c *Classifier) Classify(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	tokens := Tokenize(lower)

	for _, r := range c.rules {
		if r.matches(lower, tokens) {
			return r.intent, true
		}
	}
	return "", false
}

func (r compiledRule) matches(lower string, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := r.tokens[tok]; ok {
			return true
		}
	}
	for _, p := range r.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Tokenize lowercases text and splits it on every rune that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
