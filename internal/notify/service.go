// Package notify is the single notification capability the monitor talks to.
// It renders the forecast map and fans messages out to the configured
// channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
	"github.com/rewired-gh/aurorawatch/internal/observability"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, report models.Report, artifactPath string) error
}

// Renderer produces the map artifact.
type Renderer interface {
	Render(reading models.IndexReading, verdict models.VisibilityVerdict, observer models.ObserverLocation) (models.Artifact, error)
}

// Service implements monitor.Notifier.
type Service struct {
	enabled  bool
	timeout  time.Duration
	renderer Renderer
	channels []Channel
	metrics  *observability.Metrics

	onRender func(models.Artifact)
}

// Option customizes a Service.
type Option func(*Service)

// WithArtifactHook is called with every successfully rendered artifact.
func WithArtifactHook(fn func(models.Artifact)) Option {
	return func(s *Service) {
		s.onRender = fn
	}
}

// NewService creates the notifier. When enabled is false every delivery is
// skipped and reported as failed; rendering still happens.
func NewService(enabled bool, timeout time.Duration, renderer Renderer, channels []Channel, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		enabled:  enabled,
		timeout:  timeout,
		renderer: renderer,
		channels: channels,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenderArtifact writes the forecast map.
func (s *Service) RenderArtifact(ctx context.Context, reading models.IndexReading, verdict models.VisibilityVerdict, observer models.ObserverLocation) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return models.Artifact{}, fmt.Errorf("%w: %v", models.ErrNotifierFailure, err)
	}
	artifact, err := s.renderer.Render(reading, verdict, observer)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%w: %v", models.ErrNotifierFailure, err)
	}
	if s.onRender != nil {
		s.onRender(artifact)
	}
	return artifact, nil
}

// Deliver sends the report on every channel in parallel and reports whether
// at least one channel succeeded. Channels share the delivery timeout.
func (s *Service) Deliver(ctx context.Context, kind models.MessageKind, report models.Report, artifact *models.Artifact) bool {
	if !s.enabled || len(s.channels) == 0 {
		logger.Info("Notifications disabled; skipping %s", kind)
		s.metrics.Deliveries.WithLabelValues(string(kind), "disabled").Inc()
		return false
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	path := ""
	if artifact != nil {
		path = artifact.Path
	}

	results := make([]error, len(s.channels))
	var g errgroup.Group
	for i, ch := range s.channels {
		i, ch := i, ch
		g.Go(func() error {
			err := ch.Send(ctx, report, path)
			results[i] = err
			return err
		})
	}
	_ = g.Wait()

	delivered := false
	for i, err := range results {
		name := s.channels[i].Name()
		if err != nil {
			logger.Error("Failed to send %s via %s: %v", kind, name, err)
			s.metrics.Deliveries.WithLabelValues(string(kind), "failure").Inc()
			continue
		}
		delivered = true
		logger.Debug("Sent %s via %s", kind, name)
		s.metrics.Deliveries.WithLabelValues(string(kind), "success").Inc()
	}
	return delivered
}
