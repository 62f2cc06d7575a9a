package bootstrap

import (
	"context"

	"xapi/pkg/telemetry"
)

// InitTelemetry installs the OTel providers when enabled. The returned shutdown
// function is never nil.
func InitTelemetry(cfg *Config) (func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	tel, err := telemetry.Setup(cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	return tel.Shutdown, nil
}
