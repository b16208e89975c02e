// Package app assembles the session controller from configuration. It is
// shared by the web server and the Lambda function.
package app

import (
	"context"
	"fmt"

	"github.com/fpang/mystic-studio/internal/config"
	"github.com/fpang/mystic-studio/internal/editor"
	"github.com/fpang/mystic-studio/internal/lambdaboot"
	"github.com/fpang/mystic-studio/internal/metrics"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/fpang/mystic-studio/internal/store"
	"github.com/rs/zerolog/log"
)

// Deps are the backends chosen by Build, kept for startup logging and
// shutdown.
type Deps struct {
	Controller *session.Controller
	Editor     *editor.Client

	SessionBackend string
	HistoryBackend string

	closers []func() error
}

// Close releases backend connections.
func (d *Deps) Close() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend")
		}
	}
}

// Build creates the editor client and the session controller for cfg.
// Sessions live in Redis when cfg.Redis.Addr is set, otherwise in memory.
// History goes to DynamoDB and S3 when both are configured, otherwise to a
// bounded in-memory list.
func Build(ctx context.Context, cfg *config.Config, apiKey string, obs metrics.Observer) (*Deps, error) {
	if obs == nil {
		obs = metrics.Nop{}
	}

	ed, err := editor.NewClient(ctx, editor.Config{
		APIKey:      apiKey,
		Model:       cfg.Model,
		AspectRatio: cfg.AspectRatio,
		Timeout:     cfg.EditTimeout,
		BaseURL:     cfg.BaseURL,
	}, editor.WithObserver(obs))
	if err != nil {
		return nil, fmt.Errorf("create editor: %w", err)
	}

	d := &Deps{Editor: ed}
	opts := []session.Option{
		session.WithMaxUploadBytes(cfg.MaxUploadBytes),
		session.WithEditTimeout(cfg.EditTimeout),
	}

	var sessions session.Store
	if cfg.UsesRedis() {
		client, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		rs := store.NewRedisSessionStore(client, store.WithTTL(cfg.SessionTTL))
		sessions = rs
		opts = append(opts, session.WithLocker(store.NewRedisLocker(client, store.DefaultRedisPrefix, 0)))
		d.closers = append(d.closers, rs.Close)
		d.SessionBackend = "redis://" + cfg.Redis.Addr
	} else {
		sessions = store.NewMemorySessionStore(cfg.SessionTTL)
		d.SessionBackend = "memory"
	}

	if cfg.UsesDynamoHistory() {
		clients, err := lambdaboot.InitAWS(ctx)
		if err != nil {
			d.Close()
			return nil, err
		}
		opts = append(opts, session.WithHistory(lambdaboot.InitHistory(clients.Config, cfg.History.Table, cfg.History.Bucket)))
		d.HistoryBackend = "dynamodb://" + cfg.History.Table
	} else {
		opts = append(opts, session.WithHistory(store.NewMemoryHistoryStore(cfg.History.Capacity)))
		d.HistoryBackend = "memory"
	}

	d.Controller = session.NewController(sessions, ed, opts...)
	return d, nil
}
