package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar controls the log level: debug, info, warn, error (default: info).
const LevelEnvVar = "MYSTIC_LOG_LEVEL"

// Init initializes the global logger. level overrides MYSTIC_LOG_LEVEL when
// non-empty. jsonOutput selects raw JSON lines (Lambda/CloudWatch) instead of
// the human-readable console writer.
func Init(level string, jsonOutput bool) {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	zerolog.SetGlobalLevel(ParseLevel(level))

	var out io.Writer = os.Stderr
	if !jsonOutput {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
