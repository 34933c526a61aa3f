// Package card drives the card confirmation flow: the embedded payment SDK
// confirms the intent, then the backend is asked to finalize the purchase.
package card

import (
	"context"
	"errors"
	"sync"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
)

type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var (
	ErrTermsNotAccepted = errors.New("terms must be accepted before paying")
	ErrNoClientSecret   = errors.New("payment is not initialized")
	ErrInProgress       = errors.New("payment confirmation already in progress")
	ErrCompleted        = errors.New("payment already completed")
)

const (
	msgGeneric      = "An unexpected error occurred. Please try again."
	msgNotCompleted = "Payment was not completed. Please try again."
)

// ConfirmResult is what the SDK reports for a confirmation.
type ConfirmResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	RedirectURL     string `json:"redirect_url,omitempty"`
}

// Confirmer confirms a payment intent through the card SDK.
type Confirmer interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string) (*ConfirmResult, error)
}

// Finalizer records a confirmed intent on the backend.
type Finalizer interface {
	ConfirmPayment(ctx context.Context, paymentIntentID string) (*domain.Payment, error)
}

// Outcome is the result of one submission.
type Outcome struct {
	State       State
	RedirectURL string
	Payment     *domain.Payment
	Message     string
}

// Snapshot is a read-only view of the flow.
type Snapshot struct {
	State           State  `json:"state"`
	TermsAccepted   bool   `json:"terms_accepted"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	Pending         bool   `json:"pending,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Flow is a single card checkout. It is safe for concurrent use; SDK and
// backend calls run without holding the lock.
type Flow struct {
	clientSecret string
	finalizer    Finalizer
	onSuccess    func(*domain.Payment)

	mu            sync.Mutex
	state         State
	termsAccepted bool
	confirmedID   string // set once the SDK reported success
	redirectURL   string
	pending       bool // SDK handed back a redirect or "processing"; awaiting the next report
	errMsg        string
	payment       *domain.Payment
}

// NewFlow creates an idle flow for the given client secret. onSuccess is
// called once, after the backend finalized the payment.
func NewFlow(clientSecret string, finalizer Finalizer, onSuccess func(*domain.Payment)) *Flow {
	return &Flow{
		clientSecret: clientSecret,
		finalizer:    finalizer,
		onSuccess:    onSuccess,
		state:        StateIdle,
	}
}

func (f *Flow) AcceptTerms(accepted bool) {
	f.mu.Lock()
	f.termsAccepted = accepted
	f.mu.Unlock()
}

// CanSubmit reports whether the pay button is enabled.
func (f *Flow) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkSubmittable() == nil
}

func (f *Flow) checkSubmittable() error {
	switch {
	case f.clientSecret == "":
		return ErrNoClientSecret
	case !f.termsAccepted:
		return ErrTermsNotAccepted
	case f.state == StateSucceeded:
		return ErrCompleted
	case f.state == StateConfirming && !f.pending:
		return ErrInProgress
	}
	return nil
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		State:           f.state,
		TermsAccepted:   f.termsAccepted,
		PaymentIntentID: IntentIDFromSecret(f.clientSecret),
		RedirectURL:     f.redirectURL,
		Pending:         f.pending,
		Error:           f.errMsg,
	}
}

// Submit confirms the payment through c and, on direct success, finalizes it
// on the backend. A redirect or a "processing" status leaves the flow
// confirming until the result is submitted again. Failures are never retried here; the user may submit
// again from the failed state.
func (f *Flow) Submit(ctx context.Context, c Confirmer) (*Outcome, error) {
	log := logger.New(ctx)

	f.mu.Lock()
	if err := f.checkSubmittable(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.state = StateConfirming
	f.errMsg = ""
	f.redirectURL = ""
	f.pending = false
	confirmedID := f.confirmedID
	f.mu.Unlock()

	// The SDK already confirmed this intent; only finalization is left.
	if confirmedID != "" {
		return f.finalize(ctx, confirmedID)
	}

	res, err := c.ConfirmCardPayment(ctx, f.clientSecret)
	if err != nil {
		msg := UserMessage(err)
		log.LogWarnf("card.confirm", "sdk confirmation failed: %v", err)
		return f.fail(msg), nil
	}

	switch {
	case res.RedirectURL != "":
		f.mu.Lock()
		f.redirectURL = res.RedirectURL
		f.pending = true
		f.mu.Unlock()
		log.LogInfof("card.confirm", "redirect required for %s", res.PaymentIntentID)
		return &Outcome{State: StateConfirming, RedirectURL: res.RedirectURL}, nil
	case res.Status == "succeeded":
		id := res.PaymentIntentID
		if id == "" {
			id = IntentIDFromSecret(f.clientSecret)
		}
		f.mu.Lock()
		f.confirmedID = id
		f.mu.Unlock()
		return f.finalize(ctx, id)
	case res.Status == "processing":
		f.mu.Lock()
		f.pending = true
		f.mu.Unlock()
		log.LogInfof("card.confirm", "intent %s is processing", res.PaymentIntentID)
		return &Outcome{State: StateConfirming}, nil
	}

	log.LogWarnf("card.confirm", "unexpected intent status %q", res.Status)
	return f.fail(msgNotCompleted), nil
}

func (f *Flow) finalize(ctx context.Context, paymentIntentID string) (*Outcome, error) {
	payment, err := f.finalizer.ConfirmPayment(ctx, paymentIntentID)
	if err != nil {
		logger.New(ctx).LogError("card.finalize", err)
		return f.fail(apiclient.UserMessage(err)), nil
	}
	if payment.Status == domain.PaymentFailed || payment.Status == domain.PaymentCanceled {
		return f.fail(msgNotCompleted), nil
	}

	f.mu.Lock()
	if f.state == StateSucceeded {
		f.mu.Unlock()
		return &Outcome{State: StateSucceeded, Payment: payment}, nil
	}
	f.state = StateSucceeded
	f.payment = payment
	f.mu.Unlock()

	if f.onSuccess != nil {
		f.onSuccess(payment)
	}
	return &Outcome{State: StateSucceeded, Payment: payment}, nil
}

func (f *Flow) fail(msg string) *Outcome {
	f.mu.Lock()
	f.state = StateFailed
	f.errMsg = msg
	f.mu.Unlock()
	return &Outcome{State: StateFailed, Message: msg}
}
