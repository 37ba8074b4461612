package logging

import (
	"fmt"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/config"
)

// New builds a zap logger at the configured level. Development mode switches
// to the console encoder with caller and stack traces on warnings.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = level
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("registry"), nil
}
