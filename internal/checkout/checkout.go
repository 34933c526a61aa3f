// Package checkout composes the payment intent, card and QR flows into one
// checkout for a project. Only one payment flow is mounted at a time.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/payments/card"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
)

// View is what the checkout page shows.
type View string

const (
	ViewSelect  View = "select"
	ViewPayment View = "payment"
	ViewSuccess View = "success"
	ViewClosed  View = "closed"
)

type Method string

const (
	MethodCard Method = "card"
	MethodQR   Method = "qr"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCard, MethodQR:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// DashboardPath is where a finished checkout navigates to.
const DashboardPath = "/dashboard"

const DefaultRedirectDelay = 3 * time.Second

var (
	ErrNotFound      = errors.New("checkout not found")
	ErrForbidden     = errors.New("checkout belongs to another user")
	ErrClosed        = errors.New("checkout is closed")
	ErrCompleted     = errors.New("checkout already completed")
	ErrInvalidMethod = errors.New("invalid payment method")
	ErrMethodChanged = errors.New("payment method changed")
	ErrNoCardFlow    = errors.New("card payment is not ready")
	ErrNoQRFlow      = errors.New("qr payment is not active")
)

// GuardError short-circuits a checkout before any payment call.
type GuardError struct {
	Reason  string
	Title   string
	Message string
}

func (e *GuardError) Error() string {
	return e.Title + ": " + e.Message
}

// Guard reasons.
const (
	ReasonNotFound     = "not_found"
	ReasonInactive     = "inactive"
	ReasonInvalidPrice = "invalid_price"
)

// Guard checks that project can be bought. A nil project is missing.
func Guard(project *domain.Project) error {
	switch {
	case project == nil:
		return &GuardError{
			Reason:  ReasonNotFound,
			Title:   "Project Not Found",
			Message: "The project you're trying to purchase doesn't exist.",
		}
	case !project.IsActive:
		return &GuardError{
			Reason:  ReasonInactive,
			Title:   "Project Unavailable",
			Message: "This project is currently not available for purchase.",
		}
	case !project.Price.Valid():
		return &GuardError{
			Reason:  ReasonInvalidPrice,
			Title:   "Pricing Error",
			Message: "This project has invalid pricing information. Please contact support.",
		}
	}
	return nil
}

// AsGuardError extracts a *GuardError from err.
func AsGuardError(err error) (*GuardError, bool) {
	var g *GuardError
	ok := errors.As(err, &g)
	return g, ok
}

// Backend is everything a checkout calls on the marketplace backend.
type Backend interface {
	intent.Creator
	card.Finalizer
	qr.Backend
}

// ProjectGetter loads the project being bought.
type ProjectGetter interface {
	GetProject(ctx context.Context, id string) (*domain.Project, error)
}

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Observer is told about every state change.
type Observer func(Snapshot)

// IntentSnapshot describes payment intent creation for the card method.
type IntentSnapshot struct {
	Status       string `json:"status"` // loading, ready, failed
	Attempts     int    `json:"attempts"`
	Exhausted    bool   `json:"exhausted,omitempty"`
	Error        string `json:"error,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

const (
	intentLoading = "loading"
	intentReady   = "ready"
	intentFailed  = "failed"
)

// Snapshot is the serializable state of a checkout.
type Snapshot struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ProjectID     string          `json:"project_id"`
	ProjectTitle  string          `json:"project_title"`
	Amount        float64         `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	Currency      string          `json:"currency"`
	View          View            `json:"view"`
	Method        Method          `json:"method,omitempty"`
	Intent        *IntentSnapshot `json:"intent,omitempty"`
	Card          *card.Snapshot  `json:"card,omitempty"`
	QR            *qr.Snapshot    `json:"qr,omitempty"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	RedirectTo    string          `json:"redirect_to,omitempty"`
	Navigated     bool            `json:"navigated"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Outcome classifies how a checkout ended.
func (s Snapshot) Outcome() string {
	switch {
	case s.View == ViewSuccess || s.PaymentRef != "":
		return "succeeded"
	case s.Card != nil && s.Card.State == card.StateFailed:
		return "failed"
	case s.QR != nil && (s.QR.State == qr.StateFailed || s.QR.State == qr.StateExpired):
		return string(s.QR.State)
	case s.Intent != nil && s.Intent.Status == intentFailed:
		return "failed"
	}
	return "abandoned"
}
