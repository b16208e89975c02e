package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/mystic-studio/internal/app"
	"github.com/fpang/mystic-studio/internal/cli"
	"github.com/fpang/mystic-studio/internal/config"
	"github.com/fpang/mystic-studio/internal/httpapi"
	"github.com/fpang/mystic-studio/internal/logging"
	"github.com/fpang/mystic-studio/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// CLI flags
var (
	configFlag   string
	addrFlag     string
	modelFlag    string
	validateFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "mystic-web",
	Short: "Web studio for recomposing photos with Gemini",
	Long: `Mystic Web starts a local web server with a single-page studio: upload
a photo, describe the look you want, and download the recomposed 4:5 image.

Examples:
  mystic-web
  mystic-web --addr :9090
  mystic-web --config mystic.yaml --validate-key`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default from config, :8080)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model to use")
	rootCmd.Flags().BoolVar(&validateFlag, "validate-key", false, "Validate the API key at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	logging.Init(cfg.LogLevel, cfg.LogJSON)

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	apiKey := cli.ResolveAPIKey(ctx, cfg, validateFlag)

	deps, err := app.Build(ctx, cfg, apiKey, observer)
	if err != nil {
		return err
	}
	defer deps.Close()

	frontend, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		return fmt.Errorf("access embedded frontend: %w", err)
	}

	handler := httpapi.NewRouter(deps.Controller,
		httpapi.WithObserver(observer),
		httpapi.WithCORSOrigin(cfg.CORSOrigin),
		httpapi.WithVersion(version),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		httpapi.WithFrontend(frontend),
	)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.EditTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("mystic-web").
		CommitHash(commit).
		BuildTime(buildTime).
		Config("addr", cfg.Addr).
		Config("model", cfg.Model).
		Config("aspectRatio", cfg.AspectRatio).
		Store("sessions", deps.SessionBackend).
		Store("history", deps.HistoryBackend).
		Feature("apiKey", apiKey != "").
		Feature("prometheus", true).
		InitDuration(time.Since(initStart)).
		Log()

	// Graceful shutdown. In-flight edits get the edit timeout to finish so
	// their sessions are not left processing.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.EditTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("Starting web server")
	fmt.Printf("\n  Mystic Studio: http://localhost%s\n\n", displayAddr(cfg.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-shutdownDone
	return nil
}

// displayAddr turns a listen address into the ":port" suffix of a local URL.
func displayAddr(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":" + addr
}
