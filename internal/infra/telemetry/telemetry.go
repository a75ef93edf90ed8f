package telemetry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	tracer *TracerProvider
}

// Attach configures telemetry exporters and returns a provider handle.
// Tracing is skipped when no OTLP endpoint is configured.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	provider := &Provider{}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err := NewTracerProvider(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("init tracer provider: %w", err)
		}
		provider.tracer = tracer
	} else {
		logger.Info("OTLP endpoint not configured, tracing disabled")
	}

	return provider, nil
}

// Tracer exposes the tracer provider handle, nil when tracing is disabled.
func (p *Provider) Tracer() *TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracer
}

// Shutdown flushes and stops all attached exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}
	return p.tracer.Shutdown(ctx)
}
