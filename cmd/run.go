package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/recreserve/internal/application/scheduler"
	"github.com/example/recreserve/internal/application/usecases"
	"github.com/example/recreserve/internal/config"
	"github.com/example/recreserve/internal/domain/reservation"
	"github.com/example/recreserve/internal/infrastructure/chrome"
	"github.com/example/recreserve/internal/infrastructure/imapcode"
	"github.com/example/recreserve/internal/infrastructure/logging"
	"github.com/example/recreserve/internal/infrastructure/metrics"
	"github.com/example/recreserve/internal/infrastructure/telegram"
	"github.com/example/recreserve/internal/infrastructure/tracing"
	"github.com/example/recreserve/internal/schedule"
)

type runFlags struct {
	scheduleFile string
	targetTime   string
	cron         bool
	groupSize    int
	maxRetries   int
	headless     bool
	metricsFile  string
	traceFile    string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Book every slot in the schedule, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runReservations(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&f.scheduleFile, "schedule", "", "schedule file, .json or .yaml (overrides SCHEDULE_FILE)")
	cmd.Flags().StringVar(&f.targetTime, "at", "", "target run time HH:MM:SS (overrides TARGET_RUN_TIME)")
	cmd.Flags().BoolVar(&f.cron, "cron", false, "wait for the target run time before starting (overrides CRON_MODE)")
	cmd.Flags().IntVar(&f.groupSize, "group-size", 0, "people per booking (overrides GROUP_SIZE)")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "resubmissions allowed on the Retry prompt (overrides MAX_RETRIES)")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run Chrome without a window (overrides CHROME_HEADLESS)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus textfile format (overrides METRICS_FILE)")
	cmd.Flags().StringVar(&f.traceFile, "trace-file", "", "write attempt spans as JSON (overrides TRACE_FILE)")
	return cmd
}

// apply copies explicitly set flags over the environment configuration.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("schedule") {
		cfg.ScheduleFile = f.scheduleFile
	}
	if fl.Changed("at") {
		cfg.TargetRunTime = f.targetTime
	}
	if fl.Changed("cron") {
		cfg.CronMode = f.cron
	}
	if fl.Changed("group-size") {
		cfg.GroupSize = f.groupSize
	}
	if fl.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if fl.Changed("headless") {
		cfg.ChromeHeadless = f.headless
	}
	if fl.Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if fl.Changed("trace-file") {
		cfg.TraceFile = f.traceFile
	}
}

func runReservations(ctx context.Context, cfg config.Config) error {
	runID := uuid.NewString()
	base, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	base = base.With("run_id", runID)
	log := logging.Component(base, "run")

	facilities, err := schedule.Load(cfg.ScheduleFile)
	if err != nil {
		return err
	}
	if _, err := time.Parse(scheduler.TimeLayout, cfg.TargetRunTime); err != nil {
		return fmt.Errorf("invalid target run time %q (want HH:MM:SS)", cfg.TargetRunTime)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	codes, err := newCodeRetriever(cfg, logging.Component(base, "imap"))
	if err != nil {
		return err
	}

	rec := metrics.New()
	var tracer trace.Tracer
	if cfg.TraceFile != "" {
		out, err := os.Create(cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("trace file: %w", err)
		}
		defer out.Close()
		tp, err := tracing.New(out, Version, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("trace flush failed", "err", err)
			}
		}()
		tracer = tp.Tracer("github.com/example/recreserve/internal/application/scheduler")
	}

	runner := scheduler.Runner{
		Reserver: usecases.ReserveSlot{
			Notifier: notifier,
			Codes:    codes,
			Contact: reservation.Contact{
				Phone: cfg.PhoneNumber,
				Email: cfg.IMAPEmail,
				Name:  cfg.Name,
			},
			GroupSize:        cfg.GroupSize,
			MaxRetries:       cfg.MaxRetries,
			CodePollInterval: cfg.CodePollInterval,
			CodeTimeout:      cfg.CodeTimeout,
			Logger:           logging.Component(base, "reservation"),
			Metrics:          rec,
		},
		Logger: logging.Component(base, "scheduler"),
		Tracer: tracer,
	}

	if cfg.CronMode {
		if err := runner.WaitUntil(ctx, cfg.TargetRunTime); err != nil {
			return err
		}
	}

	started := time.Now()
	session, err := chrome.Launch(ctx, chrome.Options{
		Headless:       cfg.ChromeHeadless,
		ExecPath:       cfg.ChromePath,
		RemoteURL:      cfg.ChromeRemoteURL,
		ElementTimeout: cfg.ElementTimeout,
		Logger:         logging.Component(base, "chrome"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("browser shutdown failed", "err", cerr)
		}
	}()

	sum, runErr := runner.Run(ctx, session, facilities)
	rec.Finish(started, time.Now())
	if cfg.MetricsFile != "" {
		if err := rec.WriteFile(cfg.MetricsFile); err != nil {
			log.Warn("metrics write failed", "path", cfg.MetricsFile, "err", err)
		}
	}

	if runErr != nil {
		log.Error("run aborted", "summary", sum.String(), "err", runErr)
		return runErr
	}
	log.Info("run finished", "summary", sum.String())
	return nil
}

func newNotifier(cfg config.Config) (*telegram.Notifier, error) {
	return telegram.New(telegram.Config{BotToken: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID})
}

func newCodeRetriever(cfg config.Config, log *slog.Logger) (*imapcode.Retriever, error) {
	return imapcode.New(imapcode.Config{
		Server:   cfg.IMAPServer,
		Port:     cfg.IMAPPort,
		Email:    cfg.IMAPEmail,
		Password: cfg.IMAPPassword,
		Sender:   cfg.ConfirmationSender,
		Subject:  cfg.ConfirmationSubject,
		Pattern:  cfg.CodePattern,
		Logger:   log,
	})
}
