package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/aurorawatch/internal/config"
	"github.com/rewired-gh/aurorawatch/internal/email"
	"github.com/rewired-gh/aurorawatch/internal/httpapi"
	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/mapview"
	"github.com/rewired-gh/aurorawatch/internal/monitor"
	"github.com/rewired-gh/aurorawatch/internal/notify"
	"github.com/rewired-gh/aurorawatch/internal/observability"
	"github.com/rewired-gh/aurorawatch/internal/scheduler"
	"github.com/rewired-gh/aurorawatch/internal/swpc"
	"github.com/rewired-gh/aurorawatch/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "aurorawatch",
		Short: "Aurora visibility monitor",
		Long: `aurorawatch polls the NOAA planetary K-index, works out whether aurora may
be visible from a fixed location, and sends alerts and a daily report.

Commands:
  run          Continuous monitoring (default)
  once         Send the startup notice and run a single check
  test-notify  Send the startup notice only`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor continuously",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, runMonitoring)
		},
	}
	root.RunE = runCmd.RunE

	root.AddCommand(runCmd)
	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Send the startup notice and run one check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, runOnce)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "test-notify",
		Short: "Send the startup notice to check notification settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, testNotify)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the wired service graph shared by every command.
type app struct {
	cfg       *config.Config
	monitor   *monitor.Monitor
	scheduler *scheduler.Scheduler
	telegram  *telegram.Client
	maps      *httpapi.ArtifactStore
}

func withApp(ctx context.Context, configPath string, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}

	a, err := newApp(cfg)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		return err
	}
	return fn(ctx, a)
}

func newApp(cfg *config.Config) (*app, error) {
	observer, err := cfg.ObserverLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid observer: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	metrics := observability.NewMetrics()
	source := swpc.NewClient(cfg.Source.URL, cfg.Source.Timeout, cfg.Source.BreakerFailures)

	renderer, err := mapview.NewRenderer(cfg.Map.OutputDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Forecast maps are written to %s", renderer.OutputDir())

	a := &app{
		cfg:       cfg,
		scheduler: scheduler.New(loc, cfg.Scheduler.JobTimeout),
		maps:      &httpapi.ArtifactStore{},
	}

	var channels []notify.Channel
	if cfg.Email.Enabled {
		mailer, err := email.NewClient(email.Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Timeout:  cfg.Notifier.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email: %w", err)
		}
		channels = append(channels, mailer)
		logger.Info("Email notifications enabled for %d recipient(s)", len(cfg.Email.To))
	} else {
		logger.Debug("Email notifications disabled")
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.NewClient(telegram.Config{
			BotToken:       cfg.Telegram.BotToken,
			ChatID:         cfg.Telegram.ChatID,
			MaxRetries:     cfg.Telegram.MaxRetries,
			RetryDelayBase: cfg.Telegram.RetryDelayBase,
			RatePerSec:     cfg.Telegram.RatePerSec,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		a.telegram = tg
		channels = append(channels, tg)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if cfg.Notifier.Enabled && len(channels) == 0 {
		logger.Warn("Notifications are enabled but no channel is configured; messages will only be logged")
	}

	notifier := notify.NewService(cfg.Notifier.Enabled, cfg.Notifier.Timeout, renderer, channels, metrics,
		notify.WithArtifactHook(a.maps.Set))

	a.monitor = monitor.New(source, notifier, observer, monitor.Config{
		KpThreshold:     cfg.Monitor.KpThreshold,
		Cooldown:        cfg.Cooldown(),
		CheckInterval:   cfg.CheckInterval(),
		DailyReportTime: cfg.Monitor.DailyReportTime,
		Location:        loc,
	}, metrics)

	return a, nil
}

func (a *app) now() time.Time {
	return time.Now().In(a.scheduler.Location())
}

func runMonitoring(ctx context.Context, a *app) error {
	logger.Info("Starting aurora monitoring for %s (%s)", a.monitor.Observer().DisplayName(), a.monitor.Observer().Coordinates())

	a.monitor.StartupNotice(ctx, a.now())

	if err := a.scheduler.AddDaily("daily-report", a.cfg.Monitor.DailyReportTime, func(ctx context.Context) {
		a.monitor.RunDailyReport(ctx)
	}); err != nil {
		return err
	}
	if err := a.scheduler.AddInterval("check", a.cfg.CheckInterval(), func(ctx context.Context) {
		a.monitor.RunCheck(ctx)
	}); err != nil {
		return err
	}

	// Run once immediately so the first verdict does not wait a full interval.
	a.monitor.RunCheck(ctx)

	g, gctx := errgroup.WithContext(ctx)

	var srv *httpapi.Server
	if a.cfg.HTTP.Enabled {
		srv = httpapi.NewServer(a.cfg.HTTP.Addr, a.monitor, a.maps)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if a.telegram != nil {
		a.telegram.ListenForCommands(gctx, a.monitor.LastDecision)
	}

	a.scheduler.Start(gctx)
	logger.Info("Aurora monitoring active: checks every %s, daily report at %s %s, alerts when Kp >= %g",
		a.cfg.CheckInterval(), a.cfg.Monitor.DailyReportTime, a.cfg.Monitor.Timezone, a.cfg.Monitor.KpThreshold)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("Failed to notify systemd: %v", err)
	} else if ok {
		logger.Debug("Notified systemd of readiness")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, cleaning up...")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler stop: %v", err)
		}
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown: %v", err)
			}
		}
		return nil
	})

	err := g.Wait()
	logger.Info("Service stopped")
	return err
}

func runOnce(ctx context.Context, a *app) error {
	logger.Info("Running a single aurora check")
	a.monitor.StartupNotice(ctx, a.now())
	d := a.monitor.RunCheck(ctx)
	logger.Info("Check %s finished: %s", d.ID, d.Kind)
	return nil
}

func testNotify(ctx context.Context, a *app) error {
	logger.Info("Testing notification configuration")
	if !a.monitor.StartupNotice(ctx, a.now()) {
		return errors.New("startup notice was not delivered")
	}
	return nil
}
