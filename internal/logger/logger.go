// Package logger builds the service-wide zap logger from application config.
package logger

import (
	"fmt"

	"github.com/ninerx/paycore/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the structured logger. Production emits JSON; every other
// environment uses the console encoder so local capture runs stay readable.
// The configured LOG_LEVEL (debug, info, warn, error) selects the level.
func New(appCfg config.Config) (*zap.Logger, error) {
	var cfg zap.Config
	if appCfg.Environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := appCfg.LogLevel
	if level == "" {
		level = "info"
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger, err := cfg.Build(zap.Fields(zap.String("service", appCfg.AppName)))
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}
