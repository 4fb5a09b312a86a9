package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	amqpadapter "mailrun/internal/adapter/amqp"
	httpadapter "mailrun/internal/adapter/http"
	"mailrun/internal/adapter/postgres"
	"mailrun/internal/adapter/transport"
	"mailrun/internal/adapter/usecase"
	"mailrun/internal/config"
	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
	"mailrun/internal/db"
)

// main is the entry point of mailrun. It loads configuration, optionally runs
// database migrations, wires the repositories and use cases, then runs one of
// three modes: "serve" (default) starts the HTTP server and the optional AMQP
// consumer, "tick" runs a single dispatch tick and exits, "seed" loads demo
// data. The tick mode exits 0 when the tick ran or found nothing to do, 3
// when another process held the dispatch lock and 1 on a fatal error, so cron
// wrappers can tell the cases apart.
func main() {
	// A missing .env file is fine; the environment may be complete already.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var logger *slog.Logger
	{
		var handler slog.Handler
		level := cfg.Log.SlogLevel()
		switch cfg.Log.SlogFormat() {
		case "json":
			handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		default:
			handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		}
		logger = slog.New(handler)
	}

	if cfg.Psql.RunMigrations {
		if err = db.Migrate(cfg.Psql.Addr.String()); err != nil {
			logger.Error("migration error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied successfully")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.Psql)
	if err != nil {
		logger.Error("database connection error", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	campaigns := postgres.NewCampaignRepository(pool)
	groups := postgres.NewGroupRepository(pool)
	recipients := postgres.NewRecipientRepository(pool)
	dispatchLog := postgres.NewDispatchLogRepository(pool)
	state := postgres.NewRunState(pool)

	resolver := usecase.NewResolver(groups, recipients, recipients, logger)
	personalizer := usecase.NewPersonalizer(cfg.Dispatch.Organization, logger)
	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Campaigns:    campaigns,
		Recipients:   recipients,
		Log:          dispatchLog,
		State:        state,
		Resolver:     resolver,
		Personalizer: personalizer,
		Transport:    transport.NewLogTransport(logger),
	}, cfg.Dispatch.SendPerTick, cfg.Dispatch.OperatorEmail, logger)
	recorder := usecase.NewResponses(dispatchLog, logger)
	reporter := usecase.NewAggregator(campaigns, dispatchLog, nil, logger)

	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	switch mode {
	case "serve":
		serve(ctx, cfg, logger, dispatcher, reporter, recorder, state)
	case "tick":
		os.Exit(runTick(ctx, logger, dispatcher))
	case "seed":
		if err := db.Seed(ctx, pool); err != nil {
			logger.Error("seed error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("demo data loaded")
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want serve, tick or seed)\n", mode)
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger,
	dispatcher port.Dispatcher, reporter port.Reporter, recorder port.ResponseRecorder, state port.RunState) {

	handler := httpadapter.NewHandler(dispatcher, reporter, recorder, state, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.Router(),
	}

	if cfg.AMQP.URL != "" {
		consumer, err := amqpadapter.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, recorder, logger)
		if err != nil {
			logger.Error("amqp connection error", slog.Any("error", err))
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("amqp consumer stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("server listening", slog.Int("port", int(cfg.HTTP.Port)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	} else {
		logger.Info("server gracefully stopped")
	}
}

func runTick(ctx context.Context, logger *slog.Logger, dispatcher port.Dispatcher) int {
	rctx := domain.RequestContext{Actor: "cron"}
	result, err := dispatcher.RunTick(ctx, rctx)
	if err != nil {
		logger.Error("dispatch tick failed", slog.Any("error", err))
		return 1
	}
	logger.Info("dispatch tick finished", slog.String("result", result.String()))
	if result == port.TickSkipped {
		return 3
	}
	return 0
}
