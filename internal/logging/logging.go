// Package logging constructs the zap logger shared across every
// component. Components never reach for a package-level global; they
// receive a *zap.Logger through their constructor, scoped with
// With(zap.String("component", ...)).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Basilakis/kai-sub004/internal/config"
)

// New builds a *zap.Logger from the logging configuration. Format
// "console" yields human-readable development output; any other value
// yields JSON production output.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Named scopes logger with a component field, the convention every
// constructor in this module follows.
func Named(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
