// Grievanced is the grievance intake daemon.
//
// It serves the conversational intake over HTTP, stores submitted
// grievances and hands them to the legacy case-management system through
// NATS and Temporal when those are enabled.
//
// Configuration is loaded from ~/.config/grievanced/config.yaml (or the
// file named by -config) and environment variables. See internal/config.
//
// Usage:
//
//	# Start with defaults (in-memory stores, OTP codes in the log)
//	grievanced
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 STORE_DRIVER=sqlite STORE_DSN=/var/lib/grievanced/g.db grievanced
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/classifier"
	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/delivery"
	grvhttp "github.com/fyrsmithlabs/grievanced/internal/http"
	"github.com/fyrsmithlabs/grievanced/internal/identifier"
	"github.com/fyrsmithlabs/grievanced/internal/intake"
	"github.com/fyrsmithlabs/grievanced/internal/legacysync"
	"github.com/fyrsmithlabs/grievanced/internal/logging"
	"github.com/fyrsmithlabs/grievanced/internal/otp"
	"github.com/fyrsmithlabs/grievanced/internal/session"
	"github.com/fyrsmithlabs/grievanced/internal/store"
	"github.com/fyrsmithlabs/grievanced/internal/submission"
	"github.com/fyrsmithlabs/grievanced/internal/tasks"
	"github.com/fyrsmithlabs/grievanced/internal/taxonomy"
	"github.com/fyrsmithlabs/grievanced/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  grievanced [-config path]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  grievanced version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("grievanced\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon and blocks until ctx is cancelled, then shuts the
// HTTP server, the sync worker and the background queue down in that order.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting grievanced",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("sessions", cfg.Session.Backend),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svcs, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := grvhttp.NewServer(svcs.intake, deps.grievances, logger, &grvhttp.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		CallbackToken: cfg.Server.CallbackToken.Value(),
	},
		grvhttp.WithIDValidator(svcs.ids),
		grvhttp.WithMetrics(grvhttp.NewHTTPMetrics(logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if svcs.sync {
			svcs.finalizer.Sweep(sweepCtx, cfg.Sync.SweepInterval, cfg.Sync.SweepBatch)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	stopSweep()
	<-sweepDone
	if deps.worker != nil {
		deps.worker.Stop()
	}
	if err := deps.queue.Close(shutdownCtx); err != nil {
		logger.Warn("Background tasks did not drain", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	return runErr
}

// dependencies holds infrastructure connections.
type dependencies struct {
	taxonomy   *taxonomy.Store
	grievances store.Store
	sessions   session.Store
	queue      *tasks.Queue
	natsConn   *nats.Conn
	temporal   client.Client
	worker     worker.Worker
	publishers legacysync.Multi
	logger     *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.taxonomy != nil {
		_ = d.taxonomy.Close()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.temporal != nil {
		d.temporal.Close()
	}
	if d.sessions != nil {
		if err := d.sessions.Close(); err != nil {
			d.logger.Warn("Closing session store", zap.Error(err))
		}
	}
	if d.grievances != nil {
		if err := d.grievances.Close(); err != nil {
			d.logger.Warn("Closing grievance store", zap.Error(err))
		}
	}
}

// services holds the wired intake components.
type services struct {
	intake    *intake.Service
	ids       *identifier.Generator
	finalizer *submission.Finalizer
	sync      bool // a sync publisher is configured
}

// initLogger builds the zap logger from the logging section, bridged to
// OTEL when a log provider is installed.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*zap.Logger, error) {
	logCfg, err := logging.FromAppConfig(cfg.Logging, cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	l, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, err
	}
	return l.Underlying(), nil
}

// initDependencies opens stores and, when enabled, connects NATS and
// Temporal. Partially opened resources are released on error.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *dependencies, err error) {
	d := &dependencies{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.taxonomy, err = taxonomy.NewStore(cfg.Taxonomy.Path, logger.Named("taxonomy"))
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	if cfg.Taxonomy.Watch && cfg.Taxonomy.Path != "" {
		if err = d.taxonomy.Watch(ctx); err != nil {
			return nil, fmt.Errorf("failed to watch taxonomy: %w", err)
		}
	}

	d.grievances, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open grievance store: %w", err)
	}
	d.sessions, err = session.Open(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	d.queue = tasks.NewQueue(cfg.Tasks.MaxConcurrent, logger.Named("tasks"))

	if cfg.NATS.Enabled {
		d.natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.Name("grievanced"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		pub, perr := legacysync.NewNATSPublisher(d.natsConn, cfg.NATS.Stream, cfg.NATS.SubjectPrefix, logger.Named("nats"))
		if perr != nil {
			return nil, perr
		}
		d.publishers = append(d.publishers, pub)
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL), zap.String("stream", cfg.NATS.Stream))
	}

	if cfg.Temporal.Enabled {
		d.temporal, err = client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to create Temporal client: %w", err)
		}
		d.publishers = append(d.publishers,
			legacysync.NewTemporalPublisher(d.temporal, cfg.Temporal.TaskQueue, logger.Named("temporal")))

		if cfg.Temporal.RunWorker {
			legacy, lerr := legacysync.NewLegacyClient(ctx, cfg.Legacy)
			if lerr != nil {
				return nil, fmt.Errorf("failed to create legacy client: %w", lerr)
			}
			d.worker = legacysync.NewWorker(d.temporal, cfg.Temporal.TaskQueue, &legacysync.Activities{
				Legacy: legacy,
				Store:  d.grievances,
			})
			if err = d.worker.Start(); err != nil {
				return nil, fmt.Errorf("failed to start sync worker: %w", err)
			}
		}
		logger.Info("Connected to Temporal",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.Bool("worker", d.worker != nil),
		)
	}

	return d, nil
}

// initServices builds the intake pipeline on top of deps.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*services, error) {
	sender, err := delivery.New(cfg.Delivery, logger.Named("delivery"))
	if err != nil {
		return nil, fmt.Errorf("failed to create otp sender: %w", err)
	}
	engine, err := otp.NewEngine(otp.Config{
		CodeLength:      cfg.OTP.CodeLength,
		TTL:             cfg.OTP.TTL,
		MaxResends:      cfg.OTP.MaxResends,
		MaxAttempts:     cfg.OTP.MaxAttempts,
		DeliveryTimeout: cfg.OTP.DeliveryTimeout,
	}, sender, logger.Named("otp"))
	if err != nil {
		return nil, fmt.Errorf("failed to create otp engine: %w", err)
	}

	c, err := classifier.New(cfg.Classifier, deps.taxonomy, logger.Named("classifier"))
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	dispatcher := classifier.NewDispatcher(c, deps.queue, cfg.Intake.ClassifyTimeout, logger.Named("classifier"),
		classifier.OnDegraded(intake.ObserveClassifierDegraded))

	loc, err := time.LoadLocation(cfg.Identifier.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid identifier.timezone: %w", err)
	}
	ids, err := identifier.New(identifier.Config{
		Prefix:       cfg.Identifier.Prefix,
		SuffixLength: cfg.Identifier.SuffixLength,
		Location:     loc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identifier generator: %w", err)
	}

	var finOpts []submission.Option
	if len(deps.publishers) > 0 {
		finOpts = append(finOpts, submission.WithPublisher(deps.publishers, deps.queue))
	}
	fin, err := submission.New(submission.Config{
		MaxAttempts:       cfg.Identifier.MaxAttempts,
		PublishAttempts:   cfg.Sync.PublishAttempts,
		PublishBackoff:    cfg.Sync.PublishBackoff,
		PublishMaxBackoff: cfg.Sync.PublishMaxBackoff,
	},
		ids, deps.grievances, logger.Named("submission"), finOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create finalizer: %w", err)
	}

	orch, err := intake.NewOrchestrator(intake.ConfigFrom(cfg.Intake), intake.Deps{
		Classifier: dispatcher,
		Taxonomy:   deps.taxonomy.Current,
		OTP:        engine,
		Submitter:  fin,
	}, logger.Named("intake"))
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	svc, err := intake.NewService(orch, deps.sessions, logger.Named("intake"))
	if err != nil {
		return nil, err
	}

	logger.Info("Services initialized",
		zap.String("classifier", cfg.Classifier.Provider),
		zap.String("delivery", cfg.Delivery.Provider),
		zap.Int("sync_sinks", len(deps.publishers)),
	)
	return &services{intake: svc, ids: ids, finalizer: fin, sync: len(deps.publishers) > 0}, nil
}
