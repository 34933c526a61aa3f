// Package qr runs the QR payment flow: the backend issues a QR payload and
// a payment id, the flow renders the code through an image service and polls
// the payment status until it settles.
package qr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
)

type State string

const (
	StateIdle       State = "idle"
	StateCreated    State = "created"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Terminal reports whether the flow has stopped polling for good.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateExpired
}

const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 15 * time.Minute
	DefaultImageSize    = 250
	DefaultImageService = "https://api.qrserver.com/v1/create-qr-code/"
)

const (
	msgCreateFailed = "Failed to generate QR code. Please try again."
	msgFailed       = "Payment failed. Please try again."
	msgExpired      = "QR code expired. Please generate a new one."
	msgUnauthorized = "Your session has expired. Please log in again."
)

var (
	ErrCompleted  = errors.New("qr payment already completed")
	ErrSuperseded = errors.New("qr payment was refreshed concurrently")
)

// Backend is the part of the API client the flow needs.
type Backend interface {
	CreateQRPayment(ctx context.Context, req apiclient.QRPaymentRequest) (*apiclient.QRPayment, error)
	CheckQRPaymentStatus(ctx context.Context, paymentID string) (domain.PaymentStatus, error)
}

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	ImageSize    int
	ImageService string

	// OnPoll, if set, observes every status check.
	OnPoll func(status domain.PaymentStatus, err error)
}

func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		ImageSize:    DefaultImageSize,
		ImageService: DefaultImageService,
	}
}

// Snapshot is a read-only view of the flow.
type Snapshot struct {
	State     State      `json:"state"`
	PaymentID string     `json:"payment_id,omitempty"`
	QRCode    string     `json:"qr_code,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Polls     int        `json:"polls"`
	Error     string     `json:"error,omitempty"`
}

// Flow is one QR checkout for a project. At most one poller runs at a time.
type Flow struct {
	backend   Backend
	cfg       Config
	projectID string
	amount    float64
	onSuccess func(Snapshot)

	mu        sync.Mutex
	gen       int
	state     State
	paymentID string
	qrCode    string
	imageURL  string
	expiresAt time.Time
	polls     int
	errMsg    string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle flow. onSuccess fires exactly once, when the payment
// reaches succeeded.
func New(backend Backend, cfg Config, projectID string, amount float64, onSuccess func(Snapshot)) *Flow {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = DefaultImageSize
	}
	if cfg.ImageService == "" {
		cfg.ImageService = DefaultImageService
	}
	return &Flow{
		backend:   backend,
		cfg:       cfg,
		projectID: projectID,
		amount:    amount,
		onSuccess: onSuccess,
		state:     StateIdle,
	}
}

// ImageURL builds the renderer URL for a QR payload.
func ImageURL(service, payload string, size int) string {
	return fmt.Sprintf("%s?size=%dx%d&data=%s", service, size, size, url.QueryEscape(payload))
}

// Start requests a QR payment and starts polling it. Any running poller is
// stopped first. The poller outlives ctx's cancellation but keeps its
// values; use Stop to end it.
func (f *Flow) Start(ctx context.Context) error {
	log := logger.New(ctx)
	f.Stop()

	f.mu.Lock()
	if f.state == StateSucceeded {
		f.mu.Unlock()
		return ErrCompleted
	}
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	qr, err := f.backend.CreateQRPayment(ctx, apiclient.QRPaymentRequest{
		ProjectID: f.projectID,
		Amount:    f.amount,
	})
	if err != nil {
		log.LogError("qr.create", err)
		msg := msgCreateFailed
		if apiclient.IsClient(err) {
			msg = apiclient.UserMessage(err)
		}
		f.mu.Lock()
		if gen == f.gen {
			f.state = StateFailed
			f.errMsg = msg
		}
		f.mu.Unlock()
		return err
	}

	timeout := f.cfg.Timeout
	expiresAt := time.Now().Add(timeout)
	if qr.ExpiresAt != nil && qr.ExpiresAt.Before(expiresAt) {
		expiresAt = *qr.ExpiresAt
		timeout = time.Until(expiresAt)
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		cancel()
		return ErrSuperseded
	}
	f.state = StateCreated
	f.paymentID = qr.PaymentID
	f.qrCode = qr.QRCode
	f.imageURL = ImageURL(f.cfg.ImageService, qr.QRCode, f.cfg.ImageSize)
	f.expiresAt = expiresAt
	f.polls = 0
	f.errMsg = ""
	// A concurrent Start may have installed its poller after our Stop.
	prevCancel, prevDone := f.cancel, f.done
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	log.LogInfof("qr.create", "qr payment %s created, polling every %s", qr.PaymentID, f.cfg.PollInterval)

	go func() {
		succeeded := f.poll(pollCtx, gen, qr.PaymentID, timeout)
		close(done)
		if succeeded && f.onSuccess != nil {
			f.onSuccess(f.Snapshot())
		}
	}()
	return nil
}

// Refresh discards the current QR payment and starts a fresh one.
func (f *Flow) Refresh(ctx context.Context) error {
	return f.Start(ctx)
}

// Stop cancels the poller and waits for it to exit. It is safe to call at
// any time and more than once.
func (f *Flow) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed when the current poller exits.
func (f *Flow) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return f.done
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		State:     f.state,
		PaymentID: f.paymentID,
		QRCode:    f.qrCode,
		ImageURL:  f.imageURL,
		Polls:     f.polls,
		Error:     f.errMsg,
	}
	if !f.expiresAt.IsZero() {
		exp := f.expiresAt
		s.ExpiresAt = &exp
	}
	return s
}

// poll checks the payment status every interval until a terminal status,
// the deadline or cancellation. It reports whether the payment succeeded.
func (f *Flow) poll(ctx context.Context, gen int, paymentID string, timeout time.Duration) bool {
	log := logger.New(ctx)

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			log.LogWarnf("qr.poll", "qr payment %s expired", paymentID)
			f.settle(gen, StateExpired, msgExpired)
			return false
		case <-ticker.C:
		}

		status, err := f.backend.CheckQRPaymentStatus(ctx, paymentID)
		if ctx.Err() != nil {
			return false
		}
		if f.cfg.OnPoll != nil {
			f.cfg.OnPoll(status, err)
		}

		f.mu.Lock()
		if gen != f.gen {
			f.mu.Unlock()
			return false
		}
		f.polls++
		f.mu.Unlock()

		if err != nil {
			if apiclient.IsUnauthorized(err) {
				f.settle(gen, StateFailed, msgUnauthorized)
				return false
			}
			log.LogWarnf("qr.poll", "status check for %s failed, will retry: %v", paymentID, err)
			continue
		}

		switch status {
		case domain.PaymentSucceeded:
			return f.settle(gen, StateSucceeded, "")
		case domain.PaymentFailed, domain.PaymentCanceled, domain.PaymentRefunded:
			f.settle(gen, StateFailed, msgFailed)
			return false
		case domain.PaymentProcessing:
			f.mu.Lock()
			if gen == f.gen && f.state == StateCreated {
				f.state = StateProcessing
			}
			f.mu.Unlock()
		}
	}
}

// settle moves the flow to a terminal state if gen is still current. It
// reports whether the transition happened.
func (f *Flow) settle(gen int, state State, msg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen || f.state.Terminal() {
		return false
	}
	f.state = state
	f.errMsg = msg
	return true
}
