package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/config"
	"campus-quiz-service/internal/domain"
	"campus-quiz-service/internal/infra/memory"
	"campus-quiz-service/internal/infra/postgres"
	redisinfra "campus-quiz-service/internal/infra/redis"
	"campus-quiz-service/internal/infra/sqlite"
	"campus-quiz-service/internal/logging"
	transport "campus-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matching := domain.MatchPolicy(cfg.Quiz.Matching)
	if !matching.Valid() {
		return fmt.Errorf("quiz.matching: unknown policy %q", cfg.Quiz.Matching)
	}
	policy := app.ExpirePolicy(cfg.Attempts.ExpirePolicy)
	if policy != app.ExpireSubmit && policy != app.ExpireAbandon {
		return fmt.Errorf("attempts.expire_policy: unknown policy %q", cfg.Attempts.ExpirePolicy)
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var quizRepo app.QuizRepository
	var boardStore app.ScoreboardRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, store, quizTTL)
		boardStore = redisinfra.NewScoreboardStore(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(store, quizTTL)
		boardStore = memory.NewScoreboardStore()
	}

	var courses app.CourseDirectory
	if len(cfg.Courses) > 0 {
		courses = memory.NewStaticCourseDirectory(cfg.Courses)
	}

	boards := app.NewScoreboardService(boardStore, quizRepo, store)
	catalog := app.NewCatalogService(store, quizRepo, courses)
	catalog.SetDefaultMatching(matching)
	attempts := app.NewAttemptService(store, quizRepo, boards, app.AttemptOptions{
		Grace:        config.TTLDuration(cfg.Attempts.Grace, 5*time.Second),
		ExpirePolicy: policy,
	})
	reports := app.NewReportService(quizRepo, store, store)

	router := transport.NewRouter(
		transport.NewHandler(catalog, attempts, reports),
		transport.NewWSHandler(attempts, boards),
		transport.RouterConfig{CORSOrigins: cfg.Server.CORSOrigins},
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Str("storage", cfg.Storage.Driver).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweep(gctx, attempts, config.TTLDuration(cfg.Attempts.SweepInterval, 30*time.Second))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (app.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.NewStore(pool), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// sweep closes overdue attempts whose taker never came back, until ctx ends.
func sweep(ctx context.Context, attempts *app.AttemptService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := attempts.ExpireOverdue(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("expire overdue attempts")
			}
			if n > 0 {
				log.Info().Int("closed", n).Msg("expired overdue attempts")
			}
		}
	}
}
