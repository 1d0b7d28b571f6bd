// Package generation provides the generative fallback used when no intent
// rule matches a query.
package generation

import (
	"context"
)

// Params bounds a single generation call.
type Params struct {
	// MaxLength caps the number of output tokens.
	MaxLength int
	// Temperature controls sampling randomness.
	Temperature float32
	// TopP is the nucleus sampling threshold.
	TopP float32
	// NoRepeatNGram discourages repeated n-grams of this size. Zero disables it.
	NoRepeatNGram int
}

// DefaultParams are the sampling settings used by both fallback stages.
var DefaultParams = Params{
	MaxLength:     150,
	Temperature:   0.7,
	TopP:          0.9,
	NoRepeatNGram: 2,
}

// Generator produces text for a prompt. Implementations may fail; callers
// in this package never let such failures escape.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, p Params) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	return f(ctx, prompt, p)
}
