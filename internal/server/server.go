package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ostanin/quizpair/internal/api"
	"github.com/ostanin/quizpair/internal/blog"
	"github.com/ostanin/quizpair/internal/comment"
	"github.com/ostanin/quizpair/internal/event"
	"github.com/ostanin/quizpair/internal/game"
	"github.com/ostanin/quizpair/internal/post"
	"github.com/ostanin/quizpair/internal/question"
	"github.com/ostanin/quizpair/internal/stats"
	"github.com/ostanin/quizpair/internal/telemetry"
	"github.com/ostanin/quizpair/internal/user"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	// Redis backs player statistics and pub/sub notifications. Leaving
	// Addrs empty disables both.
	Redis struct {
		Addrs        []string
		Pass         string
		StatsPrefix  string
		PubsubPrefix string
	}

	// Postgres backs games, questions and the blog content. Leaving Addr
	// empty switches games and questions to in-memory stores and disables
	// the blog content routes.
	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Quiz struct {
		Grace             time.Duration
		BonusNeedsCorrect bool
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		game     *game.Service
		question *question.Service
		stats    *stats.Service
		user     *user.Service
		blog     *blog.Service
		post     *post.Service
		comment  *comment.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
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
	if len(s.c.Redis.Addrs) == 0 {
		slog.Info("server: redis not configured, statistics and notifications disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	if s.c.Postgres.Addr == "" {
		slog.Info("server: postgres not configured, using in-memory stores")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	var questionRepo question.Repository = question.NewMemoryRepository()
	var gameRepo game.Repository = game.NewMemoryRepository()
	if s.infra.postgres != nil {
		questionRepo = question.NewPostgresRepository(s.infra.postgres)
		gameRepo = game.NewPostgresRepository(s.infra.postgres)
	}

	s.service.question = question.NewService(question.Config{
		Repo: questionRepo,
	})

	s.service.game = game.NewService(game.Config{
		Repo:              gameRepo,
		Questions:         s.service.question,
		EventBus:          s.eb,
		Grace:             s.c.Quiz.Grace,
		BonusNeedsCorrect: s.c.Quiz.BonusNeedsCorrect,
	})

	if s.infra.redis != nil {
		s.service.stats = stats.NewService(stats.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.StatsPrefix,
		})
	}

	if s.infra.postgres != nil {
		s.service.user = user.NewService(user.Config{DB: s.infra.postgres})
		s.service.blog = blog.NewService(blog.Config{DB: s.infra.postgres})
		s.service.post = post.NewService(post.Config{DB: s.infra.postgres})
		s.service.comment = comment.NewService(comment.Config{DB: s.infra.postgres})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(telemetry.HTTPLogger(), gin.Recovery())

	cfg := api.Config{
		Router:       e,
		EventBus:     s.eb,
		Game:         s.service.game,
		Question:     s.service.question,
		Stats:        s.service.stats,
		User:         s.service.user,
		Blog:         s.service.blog,
		Post:         s.service.post,
		Comment:      s.service.comment,
		PubsubPrefix: s.c.Redis.PubsubPrefix,
	}
	if s.infra.redis != nil {
		cfg.Redis = s.infra.redis
	}
	api.New(cfg)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.game.Stop()
	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
