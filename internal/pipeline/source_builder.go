package pipeline

import (
	"context"
	"fmt"

	"rngkiosk/internal/config"
	"rngkiosk/internal/logging"
	"rngkiosk/internal/metrics"
	"rngkiosk/internal/source"
)

// BuildSource constructs the Bit Source described by cfg. Hardware and TPM
// sources are wrapped in a FailoverSource against a fallback device (or
// crypto/rand if no fallback path is configured); onFailover is invoked the
// first time a ReadChunk call drops to the fallback. Fake sources have
// nothing to fail over to and are returned directly.
func BuildSource(cfg config.SourceConfig, onFailover func(error)) (source.BitSource, error) {
	switch cfg.Kind {
	case "fake":
		return source.NewFakeSource(cfg.FakeSeed, cfg.ReadBytes), nil

	case "hardware":
		primary := source.NewDeviceSource(cfg.Primary, cfg.ReadBytes)
		fallback := buildFallback(cfg)
		return source.NewFailoverSource(primary, fallback, onFailover), nil

	case "tpm":
		primary := source.NewTPMSource(cfg.Primary, cfg.ReadBytes)
		fallback := buildFallback(cfg)
		return source.NewFailoverSource(primary, fallback, onFailover), nil

	default:
		return nil, fmt.Errorf("pipeline: unknown source kind %q", cfg.Kind)
	}
}

func buildFallback(cfg config.SourceConfig) source.BitSource {
	if cfg.Fallback != "" {
		return source.NewDeviceSource(cfg.Fallback, cfg.ReadBytes)
	}
	return source.NewCryptoRandSource(cfg.ReadBytes)
}

// DefaultFailoverHandler builds the onFailover callback BuildSource expects,
// wired to the kiosk's ordinary logger, metrics, and audit trail. It is
// built separately from the Pipeline itself because the source has to exist
// before the Pipeline does.
func DefaultFailoverHandler(logger *logging.Logger, met *metrics.KioskMetrics, audit *logging.AuditLogger) func(error) {
	return func(primaryErr error) {
		met.RecordSourceFailover()
		logger.Warn("bit source failed over to fallback", "error", primaryErr)
		if err := audit.LogSourceSwitch(context.Background(), "primary", "fallback", primaryErr.Error()); err != nil {
			logger.Debug("audit log source switch failed", "error", err)
		}
	}
}
