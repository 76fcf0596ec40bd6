package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/ehunt/internal/api"
	"github.com/victornm/ehunt/internal/clock"
	"github.com/victornm/ehunt/internal/content"
	"github.com/victornm/ehunt/internal/cooldown"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/leaderboard"
	"github.com/victornm/ehunt/internal/progression"
	"github.com/victornm/ehunt/internal/quiz"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/team"
	"github.com/victornm/ehunt/internal/telemetry"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port         int32
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Storage struct {
		Driver string
	}

	Postgres struct {
		Addr    string
		User    string
		Pass    string
		Name    string
		Migrate bool
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Auth struct {
		JWTSecret string
		Admin     struct {
			User string
			Pass string
		}
	}

	Game struct {
		CooldownSeconds        int
		QuizSize               int
		DefaultDurationMinutes int
		Divisions              []string
		Penalty                struct {
			Enabled bool
			Points  int64
		}
	}

	Content struct {
		// Seed is an optional content file applied at boot.
		Seed string
	}
}

// DefaultConfig is the base layer the config file and environment override.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Storage.Driver = StoragePostgres
	c.Postgres.Migrate = true
	c.Redis.Leaderboard.Prefix = "ehunt"
	c.Redis.Pubsub.Prefix = "ehunt"
	c.Auth.Admin.User = "admin"
	c.Game.CooldownSeconds = int(cooldown.DefaultWindow / time.Second)
	c.Game.QuizSize = quiz.DefaultSize
	c.Game.DefaultDurationMinutes = clock.DefaultDurationMinutes
	for _, d := range progression.DefaultDivisions {
		c.Game.Divisions = append(c.Game.Divisions, string(d))
	}
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		store    store.Store
	}

	service struct {
		clock       *clock.Service
		progression *progression.Service
		quiz        *quiz.Service
		team        *team.Service
		leaderboard *leaderboard.Service
	}

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if c.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("server: auth: jwt secret is required")
	}
	if c.Auth.Admin.User == "" || c.Auth.Admin.Pass == "" {
		return nil, fmt.Errorf("server: auth: admin credentials are required")
	}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if err := s.initContent(); err != nil {
		return nil, fmt.Errorf("server: init content: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Storage.Driver {
	case StorageMemory:
		slog.Warn("server: using in-memory storage, state is lost on restart")
		s.infra.store = store.NewMemory()
		return nil
	case StoragePostgres:
		return s.initPostgres()
	default:
		return fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name)

	if p.Migrate {
		if err := store.Migrate(dsn); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("postgres: parse config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: ping: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = store.NewPostgres(db)
	return nil
}

func (s *Server) divisions() []domain.Division {
	ds := make([]domain.Division, 0, len(s.c.Game.Divisions))
	for _, d := range s.c.Game.Divisions {
		ds = append(ds, domain.Division(d))
	}
	return ds
}

func (s *Server) initService() {
	st := s.infra.store

	s.service.clock = clock.NewService(clock.Config{
		Store:                  st,
		EventBus:               s.eb,
		DefaultDurationMinutes: s.c.Game.DefaultDurationMinutes,
	})

	s.service.progression = progression.NewService(progression.Config{
		Store:    st,
		EventBus: s.eb,
		Guard: cooldown.NewGuard(time.Duration(s.c.Game.CooldownSeconds)*time.Second, cooldown.Penalty{
			Enabled: s.c.Game.Penalty.Enabled,
			Points:  s.c.Game.Penalty.Points,
		}),
		Divisions: s.divisions(),
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Store:    st,
		EventBus: s.eb,
		Size:     s.c.Game.QuizSize,
	})

	s.service.team = team.NewService(team.Config{
		Store:     st,
		EventBus:  s.eb,
		Divisions: s.divisions(),
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

// initContent applies the seed file, if any, and rebuilds the leaderboard from the store.
func (s *Server) initContent() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.c.Content.Seed != "" {
		if err := content.LoadSeed(ctx, s.infra.store, s.c.Content.Seed, s.divisions()); err != nil {
			return err
		}
	}

	teams, err := s.infra.store.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	return s.service.leaderboard.Rebuild(ctx, teams)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), api.AccessLog())
	if len(s.c.HTTP.AllowOrigins) > 0 {
		e.Use(cors.New(cors.Config{
			AllowOrigins:  s.c.HTTP.AllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Clock:        s.service.clock,
		Progression:  s.service.progression,
		Quiz:         s.service.quiz,
		Team:         s.service.team,
		Leaderboard:  s.service.leaderboard,
		Checkpoints:  s.infra.store,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		JWTSecret:    []byte(s.c.Auth.JWTSecret),
		Admin:        gin.Accounts{s.c.Auth.Admin.User: s.c.Auth.Admin.Pass},
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
