package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/akeditz/storefront/internal/api/http"
	"github.com/akeditz/storefront/internal/api/http/middleware"
	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/checkout"
	checkouthttp "github.com/akeditz/storefront/internal/checkout/http"
	"github.com/akeditz/storefront/internal/metrics"
	"github.com/akeditz/storefront/internal/session"
	storefronthttp "github.com/akeditz/storefront/internal/storefront/http"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	SecureCookies  bool

	API      *apiclient.Client
	Redis    *redis.Client
	DB       *pgxpool.Pool
	Sessions session.Store
	Checkout *checkout.Service
	History  checkouthttp.History
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())

	if len(dep.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     dep.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", session.HeaderName, middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version,
		httpapi.WithDB(dep.DB),
		httpapi.WithRedis(dep.Redis),
		httpapi.WithUpstream(dep.API),
		httpapi.WithCheckouts(dep.Checkout),
	)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(session.Middleware(dep.Sessions))

	storefronthttp.New(dep.API, dep.SecureCookies).Register(api)
	checkouthttp.New(dep.Checkout, dep.API, dep.History).Register(api.Group("/checkout"))

	return r
}
