package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultDomainModel backs the banking-tuned stage.
	DefaultDomainModel = "gemini-2.5-flash"

	// DefaultGeneralModel backs the general-purpose stage.
	DefaultGeneralModel = "gemini-2.5-flash-lite"

	// noRepeatPenalty is the frequency penalty used to approximate a
	// no-repeat n-gram constraint, which Gemini does not offer directly.
	noRepeatPenalty = 0.5
)

// BankingInstruction steers the domain-tuned stage.
const BankingInstruction = "You are a helpful assistant for a retail bank. " +
	"Answer questions about bank accounts, balances, cards, loans and transactions briefly and accurately. " +
	"Never ask for or reveal full account numbers, PINs or OTPs. " +
	"If you do not know the customer's data, explain where in the banking app they can find it."

// GeneralInstruction steers the general-purpose stage.
const GeneralInstruction = "You are a friendly, concise assistant. " +
	"Reply in at most three sentences."

// modelClient is the subset of *genai.Models the generator depends on.
type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures a GeminiGenerator.
type GeminiConfig struct {
	// APIKey is optional; when empty the genai client reads GOOGLE_API_KEY
	// or uses Vertex AI settings from the environment.
	APIKey      string
	Model       string
	Instruction string
}

// GeminiGenerator is a Generator backed by the Gemini API. The underlying
// client is safe for concurrent use, so one instance is shared per process.
type GeminiGenerator struct {
	models      modelClient
	model       string
	instruction string
}

// NewGeminiGenerator creates a genai client and wraps it as a Generator.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return newGeminiGenerator(client.Models, cfg), nil
}

func newGeminiGenerator(models modelClient, cfg GeminiConfig) *GeminiGenerator {
	model := cfg.Model
	if model == "" {
		model = DefaultDomainModel
	}
	return &GeminiGenerator{
		models:      models,
		model:       model,
		instruction: cfg.Instruction,
	}
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, buildConfig(g.instruction, p))
	if err != nil {
		return "", fmt.Errorf("GeminiGenerator.Generate: generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("GeminiGenerator.Generate: nil response from model %s", g.model)
	}

	return resp.Text(), nil
}

func buildConfig(instruction string, p Params) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.MaxLength),
		Temperature:     ptr(p.Temperature),
		TopP:            ptr(p.TopP),
	}
	if instruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		}
	}
	if p.NoRepeatNGram > 0 {
		cfg.FrequencyPenalty = ptr(float32(noRepeatPenalty))
	}
	return cfg
}

func ptr[T any](v T) *T {
	return &v
}

var _ Generator = (*GeminiGenerator)(nil)
