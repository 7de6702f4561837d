package logger

import (
    "io"
    "os"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

// New builds the process logger: human-readable in dev, JSON elsewhere.
func New(cfg config.Config) zerolog.Logger {
    var out io.Writer = os.Stdout
    if cfg.AppEnv == "dev" {
        out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
    } else {
        zerolog.TimeFieldFormat = time.RFC3339
    }
    level := zerolog.InfoLevel
    if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel { level = lv }
    logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", "redmine-reporter").Logger()
    log.Logger = logger
    return logger
}
