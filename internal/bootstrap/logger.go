package bootstrap

import (
	"hedgedesk/internal/core"
	"hedgedesk/pkg/logging"
)

// InitLogger builds the zap logger for the configured level
func InitLogger(cfg *Config) (core.ILogger, func() error, error) {
	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return logger.WithField("service", serviceName), logger.Sync, nil
}
