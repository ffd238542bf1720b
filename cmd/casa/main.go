package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/nanocasa/casa/internal/adapter/driven/github"
	"github.com/nanocasa/casa/internal/adapter/driven/metrics"
	"github.com/nanocasa/casa/internal/adapter/driven/nanorpc"
	"github.com/nanocasa/casa/internal/adapter/driven/nodeprobe"
	sqliteadapter "github.com/nanocasa/casa/internal/adapter/driven/sqlite"
	httphandler "github.com/nanocasa/casa/internal/adapter/driving/http"
	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/config"
	"github.com/nanocasa/casa/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration and manifest.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(newLogHandler(cfg)))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"manifest", cfg.ManifestPath,
		"flagship", cfg.FlagshipRepo,
		"activity_mode", cfg.ActivityMode,
		"queries", len(cfg.Manifest.Queries),
		"pinned", len(cfg.Manifest.Pinned),
		"public_nodes", len(cfg.Manifest.PublicNodes),
	)
	if !cfg.HasGitHubToken() {
		slog.Warn("CASA_GITHUB_TOKEN not set, GitHub requests are unauthenticated and heavily rate limited")
	}
	if cfg.AdminToken == "" {
		slog.Info("CASA_ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	// 2. Tracing.
	tel, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Tracing,
		TraceSampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "error", err)
		}
	}()

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire driven adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	commitStore := sqliteadapter.NewCommitRepo(db)
	contributorStore := sqliteadapter.NewContributorRepo(db)
	profileStore := sqliteadapter.NewProfileRepo(db)
	milestoneStore := sqliteadapter.NewMilestoneRepo(db)
	publicNodeStore := sqliteadapter.NewPublicNodeRepo(db)
	nodeEventStore := sqliteadapter.NewNodeEventRepo(db)
	miscStore := sqliteadapter.NewMiscRepo(db)
	jobRunStore := sqliteadapter.NewJobRunRepo(db)

	ghClient := githubadapter.NewClient(cfg.GitHubToken, cfg.HTTPTimeout)
	ledger := nanorpc.NewLedgerClient(cfg.LedgerRPCURL, cfg.LedgerRPCKey, cfg.LedgerTimeout)
	directory := nanorpc.NewDirectory(cfg.IdentityURL, cfg.HTTPTimeout)
	prober := nodeprobe.NewProber(cfg.ProbeTimeout)
	jobMetrics := metrics.NewJobMetrics()

	// 6. Application services.
	reconcileSvc := application.NewReconcileService(ghClient, repoStore, application.RepoSources{
		Queries: cfg.Manifest.Queries,
		Pinned:  cfg.Manifest.Pinned,
		Ignored: cfg.Manifest.Ignored,
	})
	activitySvc := application.NewActivityService(ghClient, repoStore, commitStore, contributorStore, miscStore, application.ActivityConfig{
		Mode:        cfg.ActivityMode,
		Inception:   cfg.Inception,
		Concurrency: cfg.FetchConcurrency,
	})
	milestoneSvc := application.NewMilestoneService(ghClient, milestoneStore, cfg.FlagshipRepo)
	eventSvc := application.NewEventService(ghClient, nodeEventStore, cfg.FlagshipRepo)
	nodeHealthSvc := application.NewNodeHealthService(prober, publicNodeStore, cfg.Manifest.Endpoints(), cfg.ProbeConcurrency)
	devFundSvc := application.NewDevFundService(ledger, directory, miscStore, cfg.LedgerAccount, application.LedgerPolicy{
		SkipFirstEntry: cfg.LedgerSkipFirst,
	})
	spotlightSvc := application.NewSpotlightService(repoStore, miscStore, application.SpotlightConfig{
		SkipTop:  cfg.SpotlightSkipTop,
		MaxStars: cfg.SpotlightMaxStars,
	}, nil)
	pruner := application.NewLogPruner(jobRunStore)

	datasetSvc := application.NewDatasetService(application.DatasetStores{
		Repos:        repoStore,
		Commits:      commitStore,
		Contributors: contributorStore,
		Profiles:     profileStore,
		Milestones:   milestoneStore,
		PublicNodes:  publicNodeStore,
		NodeEvents:   nodeEventStore,
		Misc:         miscStore,
		JobRuns:      jobRunStore,
	}, cfg.FlagshipRepo, cfg.PopularRepoRank)

	// 7. Scheduler. Registration order is the initial run order: repositories
	// must exist before activity, and spotlight reads the fresh counters.
	tracer := application.NewJobTracer(jobRunStore, miscStore, jobMetrics, slog.Default().Handler(), cfg.JobRetention)
	scheduler, err := application.NewScheduler(tracer,
		application.Job{
			Name:     application.JobRepos,
			Interval: cfg.Interval(application.JobRepos, time.Hour),
			Run: func(ctx context.Context, log *application.JobLogger) error {
				_, err := reconcileSvc.Run(ctx, log)
				return err
			},
		},
		application.Job{Name: application.JobActivity, Interval: cfg.Interval(application.JobActivity, time.Hour), Run: activitySvc.Update},
		application.Job{Name: application.JobMilestones, Interval: cfg.Interval(application.JobMilestones, time.Hour), Run: milestoneSvc.Refresh},
		application.Job{Name: application.JobNodeEvents, Interval: cfg.Interval(application.JobNodeEvents, 15*time.Minute), Run: eventSvc.Refresh},
		application.Job{Name: application.JobPublicNodes, Interval: cfg.Interval(application.JobPublicNodes, 15*time.Minute), Run: nodeHealthSvc.Check},
		application.Job{Name: application.JobDevFund, Interval: cfg.Interval(application.JobDevFund, 24*time.Hour), Run: devFundSvc.Refresh},
		application.Job{Name: application.JobSpotlight, Interval: cfg.Interval(application.JobSpotlight, 24*time.Hour), Run: spotlightSvc.Update},
		application.Job{Name: application.JobPruneLogs, Interval: cfg.Interval(application.JobPruneLogs, 24*time.Hour), Run: pruner.Prune},
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()
	slog.Info("scheduler started", "jobs", scheduler.Names())

	// 8. HTTP API.
	apiHandler := httphandler.NewHandler(datasetSvc, scheduler, jobMetrics.Handler(), cfg.AdminToken, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewRouter(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	slog.Info("casa started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	// 10. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Jobs observe the cancelled context; wait so the database closes last.
	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}

func newLogHandler(cfg *config.Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}
