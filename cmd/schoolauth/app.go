package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/schoolauth/internal/db"
	"github.com/nkiryanov/schoolauth/internal/handlers"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/repository/postgres"
	"github.com/nkiryanov/schoolauth/internal/service/auth"
	"github.com/nkiryanov/schoolauth/internal/service/requesttoken"
	"github.com/nkiryanov/schoolauth/internal/service/schoology"
	"github.com/nkiryanov/schoolauth/internal/service/session"
	"github.com/nkiryanov/schoolauth/internal/service/sweeper"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	pool    *pgxpool.Pool
	sweeper *sweeper.Sweeper
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	client, err := schoology.NewClient(schoology.Config{
		BaseURL:        c.SchoologyURL,
		ConsumerKey:    c.SchoologyConsumerKey,
		ConsumerSecret: c.SchoologyConsumerSecret,
		Timeout:        c.SchoologyTimeout,
	}, l.With("component", "schoology"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating schoology client. Err: %w", err)
	}

	flows := requesttoken.New(storage, l.With("component", "requesttoken"))
	sessions := session.New(session.Config{}, storage.Session(), l.With("component", "session"))

	authService, err := auth.NewService(auth.Config{}, storage, client, flows, sessions, l.With("component", "auth"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	sw := sweeper.New(
		sweeper.Config{Interval: c.SweepInterval},
		storage.RequestToken(),
		storage.Session(),
		l.With("component", "sweeper"),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(authService, l),
		pool:       pool,
		sweeper:    sw,
		logger:     l,
	}, nil
}

// Run starts http server and sweeper. Both are stopped on context cancellation
// or when any of them fails
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.serve(ctx)
	})
	g.Go(func() error {
		// Clean up what expired while the service was down
		s.sweeper.SweepOnce(ctx)
		<-s.sweeper.Run(ctx)
		return nil
	})

	return g.Wait()
}

// Listen and serve until context is cancelled; then close gracefully connections
func (s *ServerApp) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
