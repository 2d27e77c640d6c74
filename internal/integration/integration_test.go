package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"brainbrawler-service/internal/app"
	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/infra/postgres"
	pgmigrations "brainbrawler-service/internal/infra/postgres/migrations"
	infraredis "brainbrawler-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := postgres.NewQuestionSetLoader(pool)
	set, err := loader.LoadQuestionSet(ctx, "default")
	if err != nil {
		t.Fatalf("load seeded set: %v", err)
	}
	correct := make(map[string]string, len(set.Questions))
	for _, q := range set.Questions {
		correct[q.ID] = q.CorrectOptionID
	}

	newCoordinator := func() *app.Coordinator {
		return app.NewCoordinator(
			postgres.NewMatchStore(pool, loader),
			infraredis.NewQuestionSetRepository(redisClient, loader, 5*time.Minute),
			app.Options{
				DefaultQuestionSetID: "default",
				GracePeriod:          20 * time.Millisecond,
				TickInterval:         time.Hour,
				CodeReserver:         infraredis.NewCodeReserver(redisClient, time.Hour),
			},
		)
	}
	coord := newCoordinator()

	snap, err := coord.CreateMatch(ctx, app.CreateMatchRequest{HostID: "u1", HostName: "Alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "match:code:"+snap.Code).Result(); n != 1 {
		t.Fatalf("expected join code to be reserved in redis")
	}
	if _, err := coord.JoinMatch(ctx, snap.Code, "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := coord.JoinMatch(ctx, snap.Code, "u3", "Carol"); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	if err := coord.RemovePlayer(ctx, snap.Code, "u3"); err != nil {
		t.Fatalf("remove carol: %v", err)
	}
	if _, err := coord.StartMatch(ctx, snap.Code); err != nil {
		t.Fatalf("start: %v", err)
	}

	for round := 0; round < len(set.Questions); round++ {
		current, err := coord.GetMatch(ctx, snap.Code)
		if err != nil || current.CurrentQuestion == nil {
			t.Fatalf("round %d: no current question (%v)", round, err)
		}
		answer := correct[current.CurrentQuestion.ID]
		if _, err := coord.SubmitAnswer(ctx, snap.Code, "u1", answer, 1); err != nil {
			t.Fatalf("round %d alice: %v", round, err)
		}
		if _, err := coord.SubmitAnswer(ctx, snap.Code, "u2", "wrong", 1); err != nil {
			t.Fatalf("round %d bob: %v", round, err)
		}
		waitFor(t, func() bool {
			s, _ := coord.GetMatch(ctx, snap.Code)
			return s.Status == domain.StatusFinished || s.CurrentQuestionIndex > round
		})
	}
	if err := coord.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	restarted := newCoordinator()
	defer restarted.Shutdown(ctx)
	loaded, err := restarted.GetMatch(ctx, snap.Code)
	if err != nil {
		t.Fatalf("lazy load: %v", err)
	}
	alice, _ := loaded.Player("u1")
	bob, _ := loaded.Player("u2")
	if loaded.Status != domain.StatusFinished || alice.Score != 450 || bob.Score != -75 || !alice.IsHost {
		t.Fatalf("unexpected persisted match %+v", loaded)
	}
	if len(loaded.Players) != 2 {
		t.Fatalf("removed player persisted: %+v", loaded.Players)
	}
	if inUse, err := postgres.NewMatchStore(pool, loader).CodeInUse(ctx, snap.Code); err != nil || !inUse {
		t.Fatalf("expected stored code in use, got %v (%v)", inUse, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "brawler", "POSTGRES_PASSWORD": "brawlerpass", "POSTGRES_DB": "brainbrawler"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://brawler:brawlerpass@%s:%s/brainbrawler?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
