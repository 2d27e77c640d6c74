package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"brainbrawler-service/internal/app"
	"brainbrawler-service/internal/config"
	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/infra/memory"
	"brainbrawler-service/internal/infra/postgres"
	infraredis "brainbrawler-service/internal/infra/redis"
	transport "brainbrawler-service/internal/transport/http"
	"brainbrawler-service/internal/workers"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	checks := map[string]transport.HealthCheck{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
	}

	var loader memory.QuestionSetLoader = memory.NewStaticQuestionSetLoader(builtinQuestionSets())
	if pool != nil {
		loader = postgres.NewQuestionSetLoader(pool)
	}

	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSetRepository
	if redisClient != nil {
		questions = infraredis.NewQuestionSetRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionSetRepository(loader, questionTTL)
	}

	var store app.MatchStore
	if pool != nil {
		store = postgres.NewMatchStore(pool, loader)
	} else {
		log.Printf("postgres not configured, matches are kept in memory only")
		store = memory.NewMatchStore(loader)
	}

	opts := app.Options{
		DefaultQuestionSetID: cfg.Match.DefaultQuestionSet,
		TickInterval:         config.Duration(cfg.Match.TickInterval, time.Second),
		GracePeriod:          config.Duration(cfg.Match.GracePeriod, 3*time.Second),
		WrongAnswerPenalty:   cfg.Match.WrongAnswerPenalty,
		TimeoutPenalty:       cfg.Match.TimeoutPenalty,
		CodeAttempts:         cfg.Match.CodeAttempts,
		WriteQueue:           cfg.Match.WriteQueue,
	}
	if opts.DefaultQuestionSetID == "" {
		opts.DefaultQuestionSetID = "default"
	}
	if redisClient != nil {
		opts.CodeReserver = infraredis.NewCodeReserver(redisClient, config.Duration(cfg.Redis.TTL, 2*time.Hour))
	}
	coord := app.NewCoordinator(store, questions, opts)

	sweeper := workers.NewSweeper(coord,
		config.Duration(cfg.Match.SweepInterval, time.Minute),
		config.Duration(cfg.Match.IdleTTL, 30*time.Minute))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(coord, checks),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting match coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serverErr := server.Shutdown(shutdownCtx)
		return errors.Join(serverErr, coord.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// builtinQuestionSets is the question bank used when no database is configured.
// It matches the set seeded by the initial migration.
func builtinQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"default": {
			ID:    "default",
			Title: "General knowledge",
			Questions: []domain.Question{
				{
					ID:   "capital-fr",
					Text: "What is the capital of France?",
					Options: []domain.Option{
						{ID: "a", Text: "Berlin"},
						{ID: "b", Text: "Madrid"},
						{ID: "c", Text: "Paris"},
						{ID: "d", Text: "Rome"},
					},
					CorrectOptionID: "c",
				},
				{
					ID:   "planet-red",
					Text: "Which planet is known as the Red Planet?",
					Options: []domain.Option{
						{ID: "a", Text: "Venus"},
						{ID: "b", Text: "Mars"},
						{ID: "c", Text: "Jupiter"},
						{ID: "d", Text: "Saturn"},
					},
					CorrectOptionID: "b",
				},
				{
					ID:   "ocean-big",
					Text: "What is the largest ocean on Earth?",
					Options: []domain.Option{
						{ID: "a", Text: "Atlantic"},
						{ID: "b", Text: "Indian"},
						{ID: "c", Text: "Arctic"},
						{ID: "d", Text: "Pacific"},
					},
					CorrectOptionID: "d",
				},
			},
		},
	}
}
