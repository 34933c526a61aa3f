// Package intent obtains a payment intent (and its client secret) from the
// backend before the card flow can start.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
)

// Creator is the backend call the initializer retries.
type Creator interface {
	CreatePaymentIntent(ctx context.Context, req apiclient.PaymentIntentRequest) (*apiclient.PaymentIntent, error)
}

// Config holds retry configuration for intent creation.
type Config struct {
	// MaxRetries is the number of automatic retries after the first attempt.
	MaxRetries int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration

	// Currency is used when a request does not name one.
	Currency string

	// OnAttempt, if set, is called after every attempt.
	OnAttempt func(attempt int, err error)
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Currency:   "usd",
	}
}

type Request struct {
	ProjectID string
	Price     domain.Price
	Currency  string
}

type Result struct {
	ClientSecret    string
	PaymentIntentID string
	Amount          float64
	Currency        string
	Attempts        int
}

type Initializer struct {
	creator Creator
	cfg     Config
}

func New(creator Creator, cfg Config) *Initializer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Initializer{creator: creator, cfg: cfg}
}

// Initialize validates the price, then creates the intent, retrying failed
// attempts up to MaxRetries times with a fixed delay. An invalid price fails
// before any backend call. Cancelling ctx stops a pending retry.
func (i *Initializer) Initialize(ctx context.Context, req Request) (*Result, error) {
	log := logger.New(ctx)

	amount, err := req.Price.Amount()
	if err != nil {
		return nil, &Failure{Class: ClassValidation, Message: MsgInvalidPrice, Err: err}
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = i.cfg.Currency
	}

	body := apiclient.PaymentIntentRequest{
		ProjectID: req.ProjectID,
		Amount:    amount,
		Currency:  currency,
	}

	maxAttempts := 1 + i.cfg.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		pi, err := i.creator.CreatePaymentIntent(ctx, body)
		if i.cfg.OnAttempt != nil {
			i.cfg.OnAttempt(attempt, err)
		}
		if err == nil {
			return &Result{
				ClientSecret:    pi.ClientSecret,
				PaymentIntentID: pi.PaymentIntentID,
				Amount:          amount,
				Currency:        currency,
				Attempts:        attempt,
			}, nil
		}
		lastErr = err

		class := Classify(err)
		if class == ClassUnauthorized || ctx.Err() != nil {
			return nil, &Failure{Attempts: attempt, Class: class, Message: messageFor(class, err), Err: err}
		}

		if attempt < maxAttempts {
			log.LogWarnf("intent.create", "attempt %d/%d failed (%s), retrying in %s: %v",
				attempt, maxAttempts, class, i.cfg.RetryDelay, err)

			timer := time.NewTimer(i.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &Failure{Attempts: attempt, Class: class, Message: messageFor(class, err), Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}

	class := Classify(lastErr)
	log.LogErrorf("intent.create", "giving up after %d attempts: %v", maxAttempts, lastErr)
	return nil, &Failure{
		Attempts:  maxAttempts,
		Class:     class,
		Message:   messageFor(class, lastErr),
		Exhausted: true,
		Err:       lastErr,
	}
}

// ErrorClass groups failures for user messaging.
type ErrorClass string

const (
	ClassNetwork      ErrorClass = "network"
	ClassServer       ErrorClass = "server"
	ClassValidation   ErrorClass = "validation"
	ClassUnauthorized ErrorClass = "unauthorized"
	ClassUnknown      ErrorClass = "unknown"
)

const (
	MsgInvalidPrice = "Invalid project price"
	msgNetwork      = "Unable to reach the payment service. Please check your connection."
	msgServer       = "The payment service is temporarily unavailable. Please try again later."
	msgValidation   = "The payment request was rejected."
	msgUnauthorized = "Your session has expired. Please log in again."
	msgUnknown      = "Failed to initialize payment."
)

// Classify maps a creation error to an ErrorClass.
func Classify(err error) ErrorClass {
	if errors.Is(err, domain.ErrInvalidPrice) {
		return ClassValidation
	}
	switch apiclient.KindOf(err) {
	case apiclient.KindNetwork:
		return ClassNetwork
	case apiclient.KindServer:
		return ClassServer
	case apiclient.KindClient:
		return ClassValidation
	case apiclient.KindUnauthorized:
		return ClassUnauthorized
	}
	return ClassUnknown
}

func messageFor(class ErrorClass, err error) string {
	switch class {
	case ClassNetwork:
		return msgNetwork
	case ClassServer:
		return msgServer
	case ClassUnauthorized:
		return msgUnauthorized
	case ClassValidation:
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return msgValidation
	}
	return msgUnknown
}

// Failure is returned when no intent could be created. Exhausted is set
// once every automatic retry was used; the caller may offer a manual retry.
type Failure struct {
	Attempts  int
	Class     ErrorClass
	Message   string
	Exhausted bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("payment intent: %s", f.Message)
	}
	return fmt.Sprintf("payment intent (%s, %d attempts): %v", f.Class, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
