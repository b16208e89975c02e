// Package editor recomposes images into a 4:5 frame using a generative image
// model. Client.EditImage is the only entry point: it validates configuration,
// composes the instruction, calls the model and returns the result as a PNG
// data URI. Every failure is returned as an *EditError.
package editor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fpang/mystic-studio/internal/assets"
	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Config holds the explicit configuration of a Client.
type Config struct {
	// APIKey is the Gemini API credential. An empty key is not an error at
	// construction; EditImage reports it.
	APIKey string
	// Model is the Gemini image model ID (default DefaultModelName).
	Model string
	// AspectRatio is the output ratio hint (default DefaultAspectRatio).
	AspectRatio string
	// Timeout bounds a single EditImage call; zero means no bound beyond ctx.
	Timeout time.Duration
	// BaseURL overrides the Gemini endpoint (tests, proxies).
	BaseURL string
}

// Client recomposes images. It does not guard against overlapping calls;
// callers serialize submissions per session.
type Client struct {
	cfg      Config
	gen      Generator
	observer metrics.Observer
}

// Option configures a Client.
type Option func(*Client)

// WithGenerator replaces the Gemini-backed generator.
func WithGenerator(g Generator) Option {
	return func(c *Client) {
		c.gen = g
	}
}

// WithObserver records edit outcomes and latency.
func WithObserver(o metrics.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a Client. Unless a generator is supplied, a Gemini
// generator is created when cfg.APIKey is set.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = DefaultAspectRatio
	}

	c := &Client{cfg: cfg, observer: metrics.Nop{}}
	for _, opt := range opts {
		opt(c)
	}

	if c.gen == nil && cfg.APIKey != "" {
		client, err := NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		c.gen = NewGeminiGenerator(client, cfg.Model)
	}

	return c, nil
}

// Model returns the configured model ID.
func (c *Client) Model() string {
	return c.cfg.Model
}

// BuildInstruction composes the instruction sent to the model: the fixed
// auto-composition protocol followed by the trimmed user prompt, or the
// default request when the prompt is blank.
func BuildInstruction(prompt string) string {
	return assets.RenderCompositionInstruction(strings.TrimSpace(prompt))
}

// EditImage recomposes originalImage (a data URI) according to prompt and
// returns the result as a data:image/png;base64 URI.
func (c *Client) EditImage(ctx context.Context, originalImage, prompt string) (string, error) {
	start := time.Now()

	result, err := c.editImage(ctx, originalImage, prompt)
	if err != nil {
		ee := asEditError(err)
		outcome := metrics.OutcomeFailure
		if ee.Kind == KindConfig {
			outcome = metrics.OutcomeConfigError
		}
		c.observer.ObserveEdit(outcome, time.Since(start))
		log.Error().
			Err(ee.Err).
			Str("kind", ee.Kind.String()).
			Str("message", ee.Message).
			Dur("duration", time.Since(start)).
			Msg("Masterpiece generation error")
		return "", ee
	}

	c.observer.ObserveEdit(metrics.OutcomeSuccess, time.Since(start))
	return result, nil
}

func (c *Client) editImage(ctx context.Context, originalImage, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &EditError{Kind: KindConfig, Message: MsgMissingAPIKey}
	}
	if c.gen == nil {
		return "", &EditError{Kind: KindConfig, Message: MsgMissingAPIKey, Err: errors.New("no generator configured")}
	}

	src := imagedata.ParseDataURI(originalImage)
	data, err := src.Decode()
	if err != nil {
		return "", &EditError{Kind: KindInput, Message: MsgUnreadableSource, Err: err}
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	img, err := c.gen.GenerateImage(ctx, GenerateRequest{
		ImageData:   data,
		MIMEType:    src.MIMEType,
		Instruction: BuildInstruction(prompt),
		AspectRatio: c.cfg.AspectRatio,
	})
	if err != nil {
		return "", err
	}

	return imagedata.EncodePNG(img.Data), nil
}
