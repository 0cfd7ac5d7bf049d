package llm

import (
	"context"
	"errors"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrEmptyResponse is returned when a provider answers without any text
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator is a text-in, text-out language model
type Generator interface {
	// GenerateContent sends a system instruction and a user prompt and returns the model text
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	// Name identifies the provider and model, e.g. "gemini:gemini-2.5-flash-lite"
	Name() string
	Close() error
}

// FromConfig returns the first enabled provider in the order Gemini, OpenAI, Vertex AI, Claude.
// It returns nil and no error when no provider is enabled.
func FromConfig(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch {
	case cfg.UseGemini && cfg.GeminiAPIKey != "":
		log.Debug().Str("model", cfg.GeminiModel).Msg("Using Gemini API")
		client, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case cfg.UseOpenAI && cfg.OpenAIAPIKey != "":
		log.Debug().Str("model", cfg.OpenAIModel).Msg("Using OpenAI")
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, ""), nil
	case cfg.UseVertex && cfg.GoogleCloudProject != "":
		log.Debug().Str("model", cfg.VertexModel).Msg("Using Vertex AI")
		client, err := NewVertexAIClient(ctx, cfg.GoogleCloudProject, cfg.GoogleCloudLocation, cfg.VertexModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case cfg.UseClaude && cfg.AnthropicAPIKey != "":
		log.Debug().Str("model", cfg.ClaudeModel).Msg("Using Claude")
		return NewClaudeClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, ""), nil
	}
	return nil, nil
}
