// Package scheduler triggers the periodic check and the daily report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
)

// DefaultJobTimeout bounds a single run when none is configured.
const DefaultJobTimeout = 2 * time.Minute

// Job is one scheduled unit of work. ctx carries the per-run deadline.
type Job func(ctx context.Context)

// Scheduler runs named jobs on cron schedules in a fixed timezone. A job
// that is still running when its next tick arrives is skipped, and a
// panicking job is logged and recovered.
type Scheduler struct {
	mu         sync.Mutex
	c          *cron.Cron
	parser     cron.Parser
	loc        *time.Location
	jobTimeout time.Duration
	base       context.Context
	schedules  map[string]cron.Schedule
	entries    map[string]cron.EntryID
}

func New(loc *time.Location, jobTimeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	cl := logger.CronLogger()
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			// Recover sits inside SkipIfStillRunning so a panic still releases
			// the running slot.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:        loc,
		jobTimeout: jobTimeout,
		base:       context.Background(),
		schedules:  map[string]cron.Schedule{},
		entries:    map[string]cron.EntryID{},
	}
}

// Location is the timezone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// AddDaily runs job every day at atHHMM in the scheduler timezone.
func (s *Scheduler) AddDaily(name, atHHMM string, job Job) error {
	h, m, err := ParseTimeOfDay(atHHMM)
	if err != nil {
		return err
	}
	sched, err := s.parser.Parse(fmt.Sprintf("%d %d * * *", m, h))
	if err != nil {
		return fmt.Errorf("failed to build daily schedule: %w", err)
	}
	return s.add(name, sched, job)
}

// AddInterval runs job every interval, measured from Start. Intervals are
// rounded down to whole seconds.
func (s *Scheduler) AddInterval(name string, every time.Duration, job Job) error {
	if every < time.Second {
		return fmt.Errorf("%w: interval %s is shorter than one second", models.ErrInvalidInput, every)
	}
	return s.add(name, cron.Every(every), job)
}

func (s *Scheduler) add(name string, sched cron.Schedule, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	s.schedules[name] = sched
	s.entries[name] = s.c.Schedule(sched, s.wrap(name, job))
	return nil
}

func (s *Scheduler) wrap(name string, job Job) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()
		if base.Err() != nil {
			return
		}

		ctx, cancel := context.WithTimeout(base, s.jobTimeout)
		defer cancel()

		start := time.Now()
		logger.Debug("Running scheduled job %s", name)
		job(ctx)
		logger.Debug("Scheduled job %s finished in %s", name, time.Since(start).Round(time.Millisecond))
	})
}

// NextRun returns the first run of the named job strictly after t.
func (s *Scheduler) NextRun(name string, after time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}, false
	}
	return sched.Next(after.In(s.loc)), true
}

// Start begins running jobs. Runs derive their contexts from ctx, so
// cancelling it stops in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.c.Start()
	for name, id := range s.entries {
		logger.Info("Scheduled %s, next run at %s", name, s.c.Entry(id).Next.Format("2006-01-02 03:04 PM MST"))
	}
}

// Stop prevents new runs and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for scheduled jobs to finish")
	}
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", models.ErrInvalidInput, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", models.ErrInvalidInput, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", models.ErrInvalidInput, s)
	}
	return h, m, nil
}
