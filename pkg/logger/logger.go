package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. Environment can be "dev", "uat", or "prod";
// dev gets a colored console encoder, everything else structured JSON with
// ISO8601 timestamps. The returned handle is passed into components
// explicitly; there is no package-level logger.
func New(service, env, level string) (*zap.Logger, error) {
	var cfg zap.Config

	if env == "dev" || env == "local" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// Level override
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	log, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	log.Info("logger initialized",
		zap.String("service", service),
		zap.String("env", env),
		zap.String("level", level),
	)
	return log, nil
}
