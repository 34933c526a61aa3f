package http

import (
	"context"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/audit"
	"github.com/akeditz/storefront/internal/checkout"
)

// History lists finished checkouts of a user.
type History interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error)
}

// Handler bundles the dependencies for checkout HTTP endpoints.
type Handler struct {
	svc     *checkout.Service
	api     *apiclient.Client
	history History
}

// New creates a Handler. history may be nil when no ledger is configured.
func New(svc *checkout.Service, api *apiclient.Client, history History) *Handler {
	return &Handler{svc: svc, api: api, history: history}
}
