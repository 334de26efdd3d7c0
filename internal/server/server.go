package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/victornm/quizduel/internal/api"
	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/orchestrator"
	"github.com/victornm/quizduel/internal/question"
	"github.com/victornm/quizduel/internal/session"
	"github.com/victornm/quizduel/internal/telemetry"
)

const (
	SourceEmbedded = "embedded"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port           int32
		AllowedOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Lobby struct {
		// Period is the number of seconds between two pairing passes.
		Period int
	}

	Session session.Settings

	Questions struct {
		Source string
		File   string

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Redis struct {
		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}
}

func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.AllowedOrigins = []string{"*"}
	c.GRPC.Port = 8081
	c.Lobby.Period = 140
	c.Session = session.DefaultSettings()
	c.Questions.Source = SourceEmbedded
	c.Redis.Pubsub.Prefix = "quizduel"
	return c
}

type Server struct {
	c      Config
	logger *slog.Logger

	eb       *event.Bus
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	infra struct {
		redis struct {
			pubsub redis.UniversalClient
		}

		postgres struct {
			questions *pgxpool.Pool
		}
	}

	service struct {
		feed         *question.Feed
		orchestrator *orchestrator.Orchestrator
	}

	hub    *api.Hub
	health *health.Server
	http   *http.Server
	grpc   *grpc.Server

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

type Option func(*Server)

// WithRegistry replaces the default prometheus registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
		s.gatherer = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func Init(c Config, opts ...Option) (*Server, error) {
	s := &Server{
		c:        c,
		logger:   slog.Default(),
		registry: prometheus.DefaultRegisterer,
		gatherer: prometheus.DefaultGatherer,
		done:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	s.eb = event.NewBus(event.Config{Logger: s.logger})

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	c := s.c.Redis.Pubsub
	if len(c.Addrs) == 0 {
		s.logger.InfoContext(context.Background(), "server: redis pubsub disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})

	if err := telemetry.MonitorRedis(r, s.logger); err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	s.infra.redis.pubsub = r
	return nil
}

func (s *Server) initPostgres() error {
	if s.c.Questions.Source != SourcePostgres {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := s.c.Questions.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("questions: %w", err)
	}

	s.infra.postgres.questions = db
	return nil
}

func (s *Server) loadQuestions() ([]domain.Question, error) {
	switch s.c.Questions.Source {
	case SourceEmbedded, "":
		return question.Embedded()
	case SourceFile:
		return question.LoadFile(s.c.Questions.File)
	case SourcePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return question.LoadPostgres(ctx, s.infra.postgres.questions)
	default:
		return nil, fmt.Errorf("unknown question source: %q", s.c.Questions.Source)
	}
}

func (s *Server) initService() error {
	bank, err := s.loadQuestions()
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	s.service.feed = question.NewFeed(question.Config{Bank: bank})
	s.logger.InfoContext(context.Background(), "server: question bank loaded", "source", s.c.Questions.Source, "size", s.service.feed.Size())

	s.hub = api.NewHub(s.connectionConfig(), s.logger)

	s.service.orchestrator = orchestrator.New(orchestrator.Config{
		Notifier:    s.hub,
		Feed:        s.service.feed,
		EventBus:    s.eb,
		Logger:      s.logger,
		LobbyPeriod: s.c.Lobby.Period,
		Session:     s.c.Session,
	})

	if _, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Registerer: s.registry,
		EventBus:   s.eb,
		Stats:      s.service.orchestrator.Stats,
	}); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if s.infra.redis.pubsub != nil {
		api.NewPubsub(api.PubsubConfig{
			Redis:    s.infra.redis.pubsub,
			EventBus: s.eb,
			Prefix:   s.c.Redis.Pubsub.Prefix,
			Logger:   s.logger,
		})
	}

	return nil
}

func (s *Server) connectionConfig() api.ConnectionConfig {
	cc := api.DefaultConnectionConfig()
	if len(s.c.HTTP.AllowedOrigins) > 0 {
		cc.AllowedOrigins = s.c.HTTP.AllowedOrigins
	}
	return cc
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine: s.service.orchestrator,
		Hub:    s.hub,
		Logger: s.logger,
	}).Register(e)

	allowed := s.connectionConfig().AllowedOrigins
	handler := cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(s.logger))
	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
}

// Start serves gRPC and HTTP and runs the lobby clock until Shutdown.
func (s *Server) Start() {
	ctx := s.ctx
	s.started.Store(true)
	defer close(s.done)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		s.logger.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		s.logger.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		s.logger.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		defer s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return s.service.orchestrator.Run(ctx)
	})

	err = eg.Wait()
	if err != nil {
		s.logger.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()

	s.cancel()
	s.hub.Close()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	s.eb.Stop()

	if r := s.infra.redis.pubsub; r != nil {
		_ = r.Close()
	}
	if db := s.infra.postgres.questions; db != nil {
		db.Close()
	}

	s.logger.InfoContext(ctx, "server: shutdown completed")
}
