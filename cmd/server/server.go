package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/taskrooms/internal/config"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/notify"
	"github.com/thereayou/taskrooms/internal/websocket"
	"github.com/thereayou/taskrooms/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Config *config.Config
	Router *gin.Engine
	DB     *database.Database
	Redis  *redis.Client
	Hub    *websocket.Hub
	relay  *notify.Relay
}

func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	hub := websocket.NewHub()
	publisher := notify.NewRedisPublisher(rdb, cfg.EventsChannel)

	router := newRouter(deps{
		cfg:   cfg,
		db:    db,
		redis: rdb,
		jwt:   auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		hub:   hub,
		sink:  publisher,
	})

	return &Server{
		Config: cfg,
		Router: router,
		DB:     db,
		Redis:  rdb,
		Hub:    hub,
		relay:  notify.NewRelay(rdb, cfg.EventsChannel, hub),
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains connections and closes
// the hub, Redis and the database.
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()
	go func() {
		if err := s.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event relay stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", s.Config.Port)
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	s.Hub.Stop()
	if err := s.Redis.Close(); err != nil {
		log.Printf("Redis close: %v", err)
	}
	if err := s.DB.Close(); err != nil {
		log.Printf("Database close: %v", err)
	}
	return runErr
}
