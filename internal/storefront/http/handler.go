// Package http serves the storefront catalog, auth and account routes of
// the gateway over the marketplace backend.
package http

import (
	"github.com/akeditz/storefront/internal/apiclient"
)

// Handler bundles the dependencies for storefront HTTP endpoints.
type Handler struct {
	api          *apiclient.Client
	secureCookie bool
}

func New(api *apiclient.Client, secureCookie bool) *Handler {
	return &Handler{api: api, secureCookie: secureCookie}
}
