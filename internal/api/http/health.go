package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/akeditz/storefront/internal/apiclient"
)

type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Service   string              `json:"service"`
	Version   string              `json:"version"`
	DB        string              `json:"db,omitempty"`
	Redis     string              `json:"redis,omitempty"`
	Checkouts int                 `json:"active_checkouts"`
	Upstream  *apiclient.Snapshot `json:"upstream,omitempty"`
}

// ActiveCounter reports the number of live checkouts.
type ActiveCounter interface {
	Active() int
}

type HealthHandler struct {
	serviceName string
	version     string
	db          *pgxpool.Pool
	rdb         *redis.Client
	api         *apiclient.Client
	checkouts   ActiveCounter
}

type HealthOption func(*HealthHandler)

func WithDB(db *pgxpool.Pool) HealthOption {
	return func(h *HealthHandler) { h.db = db }
}

func WithRedis(rdb *redis.Client) HealthOption {
	return func(h *HealthHandler) { h.rdb = rdb }
}

func WithUpstream(api *apiclient.Client) HealthOption {
	return func(h *HealthHandler) { h.api = api }
}

func WithCheckouts(c ActiveCounter) HealthOption {
	return func(h *HealthHandler) { h.checkouts = c }
}

func NewHealthHandler(serviceName, version string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		serviceName: serviceName,
		version:     version,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		DB:        "disabled",
		Redis:     "disabled",
	}

	if h.db != nil {
		if err := h.db.Ping(pingCtx); err != nil {
			resp.DB = "down"
		} else {
			resp.DB = "up"
		}
	}

	// sessions live in redis; without it nobody can sign in
	if h.rdb != nil {
		if err := h.rdb.Ping(pingCtx).Err(); err != nil {
			resp.Redis = "down"
			resp.Status = "degraded"
		} else {
			resp.Redis = "up"
		}
	}

	if h.checkouts != nil {
		resp.Checkouts = h.checkouts.Active()
	}
	if h.api != nil {
		snap := h.api.Metrics()
		resp.Upstream = &snap
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
