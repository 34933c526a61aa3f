// Command api runs the storefront gateway: auth and catalog proxying plus
// server-side checkouts for the web client.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/config"
	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/audit"
	"github.com/akeditz/storefront/internal/bootstrap"
	"github.com/akeditz/storefront/internal/checkout"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
	"github.com/akeditz/storefront/internal/session"
)

const serviceName = "storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	switch cfg.App.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	deps := bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookies:  cfg.App.Environment == "production",
		Redis:          rdb,
		Sessions:       session.NewRedisStore(rdb, session.DefaultTTL),
	}

	// The audit ledger is optional; without DB_DSN finished checkouts are
	// only kept in redis.
	var recorder checkout.Recorder
	if cfg.Database.DSN != "" {
		pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: cfg.Database.DSN})
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer pool.Close()

		repo := audit.NewRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("audit schema: %v", err)
		}
		recorder = repo
		deps.DB = pool
		deps.History = repo
	} else {
		log.Println("DB_DSN not set, checkout audit ledger disabled")
	}

	deps.API = apiclient.New(cfg.API.URL,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithAssetBaseURL(cfg.API.BaseURL),
		apiclient.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
	)

	deps.Checkout = checkout.NewService(checkout.ServiceConfig{
		Intent: intent.Config{
			MaxRetries: cfg.Checkout.IntentRetries,
			RetryDelay: cfg.Checkout.IntentRetryDelay,
			Currency:   cfg.Checkout.Currency,
		},
		QR: qr.Config{
			PollInterval: cfg.Checkout.QRPollInterval,
			Timeout:      cfg.Checkout.QRTimeout,
		},
		RedirectDelay: cfg.Checkout.RedirectDelay,
	}, checkout.NewRedisRepository(rdb, cfg.Checkout.SnapshotTTL), recorder)

	sweeper := checkout.NewSweeper(deps.Checkout, "")
	if err := sweeper.Start(); err != nil {
		log.Fatalf("sweeper: %v", err)
	}

	router := bootstrap.BuildRouter(deps)
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("%s %s listening on :%s", serviceName, cfg.App.Version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	sweeper.Stop()
	deps.Checkout.Shutdown(shutdownCtx)
}
