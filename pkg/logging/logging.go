// Package logging wires the shared structured logger for the service
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/amaan667/servio-fusion/config"
)

// New builds the service logger backed by zap. Development mode uses the
// human-readable console encoder.
func New(cfg *config.Config) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if cfg.IsDevelopment() {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	logger = logger.WithFields(map[string]any{
		"app": cfg.AppName,
		"env": cfg.Environment,
	})

	return logger, nil
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
