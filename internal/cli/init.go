package cli

import (
	"context"
	"errors"

	"github.com/fpang/mystic-studio/internal/auth"
	"github.com/fpang/mystic-studio/internal/config"
	"github.com/fpang/mystic-studio/internal/editor"
	"github.com/rs/zerolog/log"
)

// ResolveAPIKey returns the Gemini API key, or "" when none is configured.
// A missing key is not fatal; the editor reports it on first use. With
// validate set, the key is checked against Gemini and failures exit.
func ResolveAPIKey(ctx context.Context, cfg *config.Config, validate bool) string {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		if errors.Is(err, auth.ErrNoAPIKey) {
			log.Warn().Msg("No API key configured; edits will fail until GEMINI_API_KEY is set")
		} else {
			log.Warn().Err(err).Msg("Failed to retrieve API key")
		}
	}

	if !validate {
		return apiKey
	}
	if apiKey == "" {
		HandleValidationError(&auth.ValidationError{Type: auth.ErrTypeNoKey, Message: "no API key"})
	}
	client, err := editor.NewGenAIClient(ctx, apiKey, cfg.BaseURL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client for validation")
	}
	if err := auth.ValidateAPIKey(ctx, client); err != nil {
		HandleValidationError(err)
	}
	log.Info().Msg("API key validated")
	return apiKey
}

// InitEditor resolves the API key and creates the editor client.
func InitEditor(ctx context.Context, cfg *config.Config, validate bool) *editor.Client {
	ed, err := editor.NewClient(ctx, editor.Config{
		APIKey:      ResolveAPIKey(ctx, cfg, validate),
		Model:       cfg.Model,
		AspectRatio: cfg.AspectRatio,
		Timeout:     cfg.EditTimeout,
		BaseURL:     cfg.BaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create editor")
	}
	return ed
}
