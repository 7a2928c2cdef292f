package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huynhbt/raffle-go/internal/config"
	"github.com/huynhbt/raffle-go/internal/postgres"
	"github.com/huynhbt/raffle-go/internal/redis"
	postgresrepo "github.com/huynhbt/raffle-go/internal/repository/postgres"
	redisrepo "github.com/huynhbt/raffle-go/internal/repository/redis"
	"github.com/huynhbt/raffle-go/internal/service"
	"github.com/huynhbt/raffle-go/internal/service/inventory"
	"github.com/huynhbt/raffle-go/internal/service/lifecycle"
	"github.com/huynhbt/raffle-go/internal/ticketimg"
	httpgin "github.com/huynhbt/raffle-go/internal/transport/http/gin"
	"github.com/huynhbt/raffle-go/internal/vietqr"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewTicketsPubSub(rdb)
	limiter := redisrepo.NewLimiter(rdb, 10, 1*time.Minute)
	idem := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	sessions := redisrepo.NewSessionStore(rdb, cfg.Raffle.SessionTTL)

	// QR generation stays disabled without credentials; purchases still
	// complete, just without a rendered QR.
	var qr lifecycle.QRProvider
	if cfg.VietQR.ClientID != "" && cfg.VietQR.APIKey != "" {
		qr = vietqr.New(vietqr.Config{
			BaseURL:     cfg.VietQR.BaseURL,
			ClientID:    cfg.VietQR.ClientID,
			APIKey:      cfg.VietQR.APIKey,
			AccountNo:   cfg.VietQR.AccountNo,
			AccountName: cfg.VietQR.AccountName,
			AcqID:       cfg.VietQR.AcqID,
			Template:    cfg.VietQR.Template,
		})
	} else {
		logger.Warn("VietQR credentials missing, payment QR generation disabled")
	}

	renderer, err := ticketimg.NewRenderer("VÉ SỐ GÂY QUỸ")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ticket renderer: %w", err)
	}

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, qr, service.Config{
		Inventory: inventory.Config{
			TicketCount:     cfg.Raffle.TicketCount,
			DefaultPageSize: cfg.Raffle.PageSize,
		},
		Lifecycle: lifecycle.Config{
			LockWindow: cfg.Raffle.LockWindow,
			UnitPrice:  decimal.NewFromInt(cfg.Raffle.UnitPrice),
			Logger:     logger,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, sessions, idem, renderer, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Seed the ticket pool before accepting traffic.
	created, err := a.services.Inventory.EnsureTickets(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure ticket pool: %w", err)
	}
	if created > 0 {
		a.logger.Info("ticket pool initialized", "created", created)
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	// Background lock sweep. The read paths already reclaim lazily; this
	// keeps counters honest on an idle site.
	if a.cfg.Raffle.SweepInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Raffle.SweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					swept, err := a.services.Lifecycle.Sweep(gCtx)
					if err != nil {
						a.logger.Error("lock sweep failed", "error", err)
						continue
					}
					if swept > 0 {
						a.logger.Info("expired locks reclaimed", "count", swept)
					}
				}
			}
		})
	}

	return g.Wait()
}
