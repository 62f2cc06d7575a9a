package bootstrap

import (
	"xapi/internal/core"
	"xapi/pkg/logging"
)

// InitLogger builds the zap logger from configuration and installs it as the global logger
func InitLogger(cfg *Config) (core.ILogger, error) {
	zl, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := zl.WithFields(map[string]interface{}{
		"account_type": cfg.XAPI.AccountType,
		"host":         cfg.XAPI.Host,
	})
	logging.SetGlobalLogger(logger)

	return logger, nil
}
