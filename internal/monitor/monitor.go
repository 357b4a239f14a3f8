package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
	"github.com/rewired-gh/aurorawatch/internal/observability"
)

// Source provides the latest planetary K-index reading.
type Source interface {
	FetchLatest(ctx context.Context) (models.IndexReading, error)
}

// Notifier renders the map artifact and delivers messages. Deliver reports
// failure through its return value and never panics or blocks past ctx.
type Notifier interface {
	RenderArtifact(ctx context.Context, reading models.IndexReading, verdict models.VisibilityVerdict, observer models.ObserverLocation) (models.Artifact, error)
	Deliver(ctx context.Context, kind models.MessageKind, report models.Report, artifact *models.Artifact) bool
}

type Config struct {
	KpThreshold float64
	Cooldown    time.Duration

	// Informational, included in messages.
	CheckInterval   time.Duration
	DailyReportTime string
	Location        *time.Location
}

func DefaultConfig() Config {
	return Config{
		KpThreshold:     4,
		Cooldown:        time.Hour,
		CheckInterval:   30 * time.Minute,
		DailyReportTime: "12:00",
		Location:        time.UTC,
	}
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used by RunCheck and RunDailyReport.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// Monitor is the decision engine. Check, DailyReport and StartupNotice are
// serialized; overlapping calls wait for the running one to finish.
type Monitor struct {
	mu       sync.Mutex
	source   Source
	notifier Notifier
	observer models.ObserverLocation
	config   Config
	alerts   *AlertState
	clock    clockwork.Clock
	metrics  *observability.Metrics

	last      atomic.Pointer[models.Decision]
	lastAlert atomic.Pointer[time.Time]
	ready     atomic.Bool
}

func New(source Source, notifier Notifier, observer models.ObserverLocation, config Config, metrics *observability.Metrics, opts ...Option) *Monitor {
	if config.Location == nil {
		config.Location = time.UTC
	}
	m := &Monitor{
		source:   source,
		notifier: notifier,
		observer: observer,
		config:   config,
		alerts:   NewAlertState(config.Cooldown),
		clock:    clockwork.NewRealClock(),
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observer returns the fixed observer location.
func (m *Monitor) Observer() models.ObserverLocation {
	return m.observer
}

// RunCheck runs Check at the current clock time.
func (m *Monitor) RunCheck(ctx context.Context) models.Decision {
	return m.Check(ctx, m.clock.Now())
}

// RunDailyReport runs DailyReport at the current clock time.
func (m *Monitor) RunDailyReport(ctx context.Context) bool {
	return m.DailyReport(ctx, m.clock.Now())
}

// Check performs one monitoring cycle: fetch, evaluate, consult the cooldown,
// and render and/or deliver accordingly.
func (m *Monitor) Check(ctx context.Context, now time.Time) models.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.clock.Now()
	decision := m.check(ctx, now)
	m.metrics.CheckDuration.Observe(m.clock.Since(start).Seconds())
	m.metrics.Decisions.WithLabelValues(string(decision.Kind)).Inc()

	m.last.Store(&decision)
	m.ready.Store(true)
	return decision
}

func (m *Monitor) check(ctx context.Context, now time.Time) models.Decision {
	decision := models.Decision{
		ID:   uuid.New().String(),
		Kind: models.DecisionNoData,
		At:   now,
	}
	logger.Info("Checking aurora conditions at %s (decision %s)", now.In(m.config.Location).Format("2006-01-02 03:04 PM MST"), decision.ID)

	reading, err := m.source.FetchLatest(ctx)
	if err != nil {
		m.metrics.FetchErrors.Inc()
		logger.Warn("Unable to fetch Kp index: %v", err)
		return decision
	}
	decision.Reading = reading
	logger.Info("Current Kp index: %.2f (data from %s)", reading.Value, reading.FormattedObservedAt())

	verdict, err := Evaluate(reading.Value, m.observer.Latitude)
	if err != nil {
		// The observer is validated at construction, so only a bad reading
		// gets here; treat it like missing data.
		m.metrics.FetchErrors.Inc()
		logger.Warn("Discarding reading %v: %v", reading.Value, err)
		decision.Reading = models.IndexReading{}
		return decision
	}
	decision.Verdict = verdict
	m.observeVerdict(reading, verdict)

	thresholdMet := reading.Value >= m.config.KpThreshold && verdict.IsVisible
	switch {
	case thresholdMet && !m.alerts.ShouldSuppress(now):
		decision.Kind = models.DecisionAlert
	case thresholdMet:
		decision.Kind = models.DecisionSuppressed
	default:
		decision.Kind = models.DecisionReportOnly
	}

	if decision.Kind == models.DecisionAlert {
		// Recorded before delivery: a failed send must not cause a
		// duplicate alert inside the cooldown window.
		m.alerts.RecordAlert(now)
		if at, ok := m.alerts.LastAlertAt(); ok {
			m.lastAlert.Store(&at)
		}
		logger.Info("Aurora alert! %s; location %s (%s)", verdict.Description, m.observer.DisplayName(), m.observer.Coordinates())
	} else {
		logger.Info("No alert needed (%s). Visible: %t, Kp: %.2f", decision.Kind, verdict.IsVisible, reading.Value)
	}

	artifact, renderErr := m.render(ctx, reading, verdict)
	if renderErr == nil {
		decision.Artifact = &artifact
	}

	if decision.Kind != models.DecisionAlert {
		decision.Notified = renderErr == nil
		return decision
	}

	report := m.newReport(models.MessageAlert, reading, verdict, now)
	delivered := m.notifier.Deliver(ctx, models.MessageAlert, report, decision.Artifact)
	if !delivered {
		logger.Error("Alert %s decided but delivery failed; cooldown stays in effect", decision.ID)
	}
	decision.Notified = delivered && renderErr == nil
	return decision
}

// DailyReport renders the current map and sends a summary regardless of the
// threshold and cooldown. It never touches the alert state. A failed fetch is
// reported as an unavailable reading rather than skipped.
func (m *Monitor) DailyReport(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("Sending daily aurora report")

	reading, err := m.source.FetchLatest(ctx)
	if err != nil {
		m.metrics.FetchErrors.Inc()
		logger.Warn("Unable to fetch Kp index for daily report: %v", err)
		reading = models.UnavailableReading()
	}

	verdict, err := Evaluate(reading.Value, m.observer.Latitude)
	if err != nil {
		logger.Warn("Discarding reading %v for daily report: %v", reading.Value, err)
		reading = models.UnavailableReading()
		verdict, err = Evaluate(reading.Value, m.observer.Latitude)
		if err != nil {
			logger.Error("Daily report aborted: %v", err)
			return false
		}
	}
	m.observeVerdict(reading, verdict)

	artifact, renderErr := m.render(ctx, reading, verdict)
	var handle *models.Artifact
	if renderErr == nil {
		handle = &artifact
	}

	report := m.newReport(models.MessageDailyReport, reading, verdict, now)
	delivered := m.notifier.Deliver(ctx, models.MessageDailyReport, report, handle)
	if delivered {
		logger.Info("Daily aurora report sent (Kp=%.1f, visible: %t)", reading.Value, verdict.IsVisible)
	} else {
		logger.Error("Failed to send daily aurora report")
	}
	return delivered && renderErr == nil
}

// StartupNotice announces that monitoring has started.
func (m *Monitor) StartupNotice(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := m.newReport(models.MessageStartupNotice, models.IndexReading{}, models.VisibilityVerdict{}, now)
	delivered := m.notifier.Deliver(ctx, models.MessageStartupNotice, report, nil)
	if delivered {
		logger.Info("Startup notice sent")
	} else {
		logger.Warn("Startup notice was not delivered")
	}
	return delivered
}

// LastDecision returns the most recent Check result.
func (m *Monitor) LastDecision() (models.Decision, bool) {
	d := m.last.Load()
	if d == nil {
		return models.Decision{}, false
	}
	return *d, true
}

// LastAlertAt returns the time of the most recent alert decision. It does
// not wait for a running cycle.
func (m *Monitor) LastAlertAt() (time.Time, bool) {
	at := m.lastAlert.Load()
	if at == nil {
		return time.Time{}, false
	}
	return *at, true
}

// CheckReadiness returns nil once at least one check has completed.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("no monitoring cycle has completed yet")
	}
	return nil
}

func (m *Monitor) render(ctx context.Context, reading models.IndexReading, verdict models.VisibilityVerdict) (models.Artifact, error) {
	artifact, err := m.notifier.RenderArtifact(ctx, reading, verdict, m.observer)
	if err != nil {
		m.metrics.RenderErrors.Inc()
		logger.Error("Failed to render aurora map: %v", err)
		return models.Artifact{}, err
	}
	logger.Debug("Map saved as %s", artifact.Path)
	return artifact, nil
}

func (m *Monitor) observeVerdict(reading models.IndexReading, verdict models.VisibilityVerdict) {
	m.metrics.CurrentKp.Set(reading.Value)
	m.metrics.Boundary.Set(verdict.BoundaryLatitude)
	if verdict.IsVisible {
		m.metrics.Visible.Set(1)
	} else {
		m.metrics.Visible.Set(0)
	}
}

func (m *Monitor) newReport(kind models.MessageKind, reading models.IndexReading, verdict models.VisibilityVerdict, now time.Time) models.Report {
	return models.Report{
		Kind:            kind,
		Observer:        m.observer,
		Reading:         reading,
		Verdict:         verdict,
		KpThreshold:     m.config.KpThreshold,
		Cooldown:        m.config.Cooldown,
		CheckInterval:   m.config.CheckInterval,
		DailyReportTime: m.config.DailyReportTime,
		GeneratedAt:     now.In(m.config.Location),
	}
}
