package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/fpang/mystic-studio/internal/app"
	"github.com/fpang/mystic-studio/internal/config"
	"github.com/fpang/mystic-studio/internal/httpapi"
	"github.com/fpang/mystic-studio/internal/lambdaboot"
	"github.com/fpang/mystic-studio/internal/logging"
	"github.com/fpang/mystic-studio/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.commitHash=${COMMIT_HASH} -X main.buildTime=$(date -u +%Y%m%dT%H%M%SZ)"
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

var handler *httpadapter.HandlerAdapterV2

func init() {
	initStart := time.Now()
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Init(cfg.LogLevel, true)
	if !cfg.UsesRedis() {
		log.Warn().Msg("MYSTIC_REDIS_ADDR not set; sessions are local to each Lambda instance")
	}
	if capped := lambdaboot.CapUploadBytes(cfg.MaxUploadBytes); capped != cfg.MaxUploadBytes {
		log.Info().Int("configured", cfg.MaxUploadBytes).Int("limit", capped).Msg("Upload limit lowered to fit the Lambda payload")
		cfg.MaxUploadBytes = capped
	}

	clients, err := lambdaboot.InitAWS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AWS")
	}

	apiKey, err := lambdaboot.LoadGeminiKey(ctx, clients.SSM)
	if err != nil {
		// Edits report the missing key; health and session routes keep working.
		log.Error().Err(err).Msg("Gemini API key unavailable")
	}

	observer := metrics.NewEMFObserver(os.Stdout)
	deps, err := app.Build(ctx, cfg, apiKey, observer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build session controller")
	}

	originSecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	if originSecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	router := httpapi.NewRouter(deps.Controller,
		httpapi.WithObserver(observer),
		httpapi.WithCORSOrigin(cfg.CORSOrigin),
		httpapi.WithVersion(commitHash),
		httpapi.WithOriginVerify(originSecret),
	)
	handler = httpadapter.NewV2(router)

	lambdaboot.StartupLog("mystic-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("model", cfg.Model).
		Config("aspectRatio", cfg.AspectRatio).
		Config("maxUploadBytes", strconv.Itoa(cfg.MaxUploadBytes)).
		Store("sessions", deps.SessionBackend).
		Store("history", deps.HistoryBackend).
		Feature("apiKey", apiKey != "").
		Feature("originVerify", originSecret != "").
		Log()
}

func main() {
	lambda.Start(handler.ProxyWithContext)
}
