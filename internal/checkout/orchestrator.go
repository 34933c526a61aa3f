package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/payments/card"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
)

// Deps are the collaborators and tunables of an Orchestrator.
type Deps struct {
	Backend       Backend
	Intent        intent.Config
	QR            qr.Config
	RedirectDelay time.Duration
	Navigator     Navigator
	Observer      Observer
}

// Orchestrator runs one checkout. Methods are safe for concurrent use;
// payment calls run without holding the lock.
type Orchestrator struct {
	id      string
	userID  string
	project domain.Project
	amount  float64
	deps    Deps

	mu         sync.Mutex
	view       View
	method     Method
	intent     *IntentSnapshot
	intentGen  int
	cancelInit context.CancelFunc
	card       *card.Flow
	qr         *qr.Flow
	paymentRef string
	redirect   *time.Timer
	navigated  bool
	closed     bool
	createdAt  time.Time
	updatedAt  time.Time
}

// New applies the project guards and returns a checkout waiting for a
// payment method. Nothing is sent to the backend.
func New(id, userID string, project *domain.Project, deps Deps) (*Orchestrator, error) {
	if err := Guard(project); err != nil {
		return nil, err
	}
	amount, _ := project.Price.Amount()
	if deps.RedirectDelay <= 0 {
		deps.RedirectDelay = DefaultRedirectDelay
	}
	if deps.Intent.Currency == "" {
		deps.Intent.Currency = "usd"
	}

	now := time.Now()
	return &Orchestrator{
		id:        id,
		userID:    userID,
		project:   *project,
		amount:    amount,
		deps:      deps,
		view:      ViewSelect,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Begin loads the project and starts a checkout for it.
func Begin(ctx context.Context, projects ProjectGetter, id, userID, projectID string, deps Deps) (*Orchestrator, error) {
	var project *domain.Project
	if projectID != "" {
		p, err := projects.GetProject(ctx, projectID)
		switch {
		case errors.Is(err, domain.ErrProjectNotFound):
		case err != nil:
			return nil, fmt.Errorf("load project: %w", err)
		default:
			project = p
		}
	}
	return New(id, userID, project, deps)
}

func (o *Orchestrator) ID() string     { return o.id }
func (o *Orchestrator) UserID() string { return o.userID }

// SelectMethod mounts the chosen payment flow and tears down the other one.
// For card the payment intent is created first; the card flow exists only
// once a client secret is available.
func (o *Orchestrator) SelectMethod(ctx context.Context, m Method) error {
	if _, err := ParseMethod(string(m)); err != nil {
		return err
	}

	o.mu.Lock()
	if err := o.checkOpen(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.method == m && (o.card != nil || o.qr != nil) {
		o.mu.Unlock()
		return nil
	}
	stale := o.unmountLocked()
	o.method = m
	o.view = ViewPayment
	o.touchLocked()
	o.mu.Unlock()

	if stale != nil {
		stale.Stop()
	}

	logger.New(ctx).LogInfof("checkout.method", "checkout %s uses %s", o.id, m)

	if m == MethodCard {
		return o.initIntent(ctx)
	}
	return o.startQR(ctx)
}

// RetryIntent runs a fresh round of payment intent creation after the
// automatic retries gave up.
func (o *Orchestrator) RetryIntent(ctx context.Context) error {
	o.mu.Lock()
	if err := o.checkOpen(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.method != MethodCard {
		o.mu.Unlock()
		return ErrNoCardFlow
	}
	if o.card != nil {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()
	return o.initIntent(ctx)
}

func (o *Orchestrator) initIntent(ctx context.Context) error {
	initCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.cancelInit != nil {
		o.cancelInit()
	}
	o.intentGen++
	gen := o.intentGen
	o.cancelInit = cancel
	o.intent = &IntentSnapshot{Status: intentLoading}
	o.touchLocked()
	o.mu.Unlock()
	o.publish()

	cfg := o.deps.Intent
	userHook := cfg.OnAttempt
	cfg.OnAttempt = func(attempt int, err error) {
		o.mu.Lock()
		if gen == o.intentGen && o.intent != nil {
			o.intent.Attempts = attempt
		}
		o.mu.Unlock()
		if userHook != nil {
			userHook(attempt, err)
		}
	}

	res, err := intent.New(o.deps.Backend, cfg).Initialize(initCtx, intent.Request{
		ProjectID: o.project.ID,
		Price:     o.project.Price,
		Currency:  cfg.Currency,
	})

	o.mu.Lock()
	if gen != o.intentGen || o.method != MethodCard || o.closed {
		o.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrMethodChanged
	}
	o.cancelInit = nil
	if err != nil {
		snap := &IntentSnapshot{Status: intentFailed, Error: err.Error()}
		if f, ok := intent.AsFailure(err); ok {
			snap.Attempts = f.Attempts
			snap.Exhausted = f.Exhausted
			snap.Error = f.Message
		}
		o.intent = snap
		o.touchLocked()
		o.mu.Unlock()
		o.publish()
		return err
	}

	o.intent = &IntentSnapshot{Status: intentReady, Attempts: res.Attempts, ClientSecret: res.ClientSecret}
	o.card = card.NewFlow(res.ClientSecret, o.deps.Backend, func(p *domain.Payment) {
		ref := p.ID
		if ref == "" {
			ref = p.PaymentIntentID
		}
		o.succeed(MethodCard, ref)
	})
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
	return nil
}

func (o *Orchestrator) startQR(ctx context.Context) error {
	cfg := o.deps.QR
	flow := qr.New(o.deps.Backend, cfg, o.project.ID, o.amount, func(s qr.Snapshot) {
		o.succeed(MethodQR, s.PaymentID)
	})

	o.mu.Lock()
	if o.method != MethodQR || o.closed {
		o.mu.Unlock()
		return ErrMethodChanged
	}
	o.qr = flow
	o.mu.Unlock()

	err := flow.Start(ctx)

	o.mu.Lock()
	// switched away while the QR payment was being created
	if o.qr != flow {
		o.mu.Unlock()
		flow.Stop()
		return ErrMethodChanged
	}
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
	return err
}

// AcceptTerms toggles the terms checkbox of the card flow.
func (o *Orchestrator) AcceptTerms(accepted bool) error {
	o.mu.Lock()
	flow := o.card
	o.mu.Unlock()
	if flow == nil {
		return ErrNoCardFlow
	}
	flow.AcceptTerms(accepted)
	o.mu.Lock()
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
	return nil
}

// SubmitCard confirms the card payment through c.
func (o *Orchestrator) SubmitCard(ctx context.Context, c card.Confirmer) (*card.Outcome, error) {
	o.mu.Lock()
	if err := o.checkOpen(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	flow := o.card
	o.mu.Unlock()
	if flow == nil {
		return nil, ErrNoCardFlow
	}

	out, err := flow.Submit(ctx, c)
	o.mu.Lock()
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
	return out, err
}

// RefreshQR replaces the QR payment with a fresh one.
func (o *Orchestrator) RefreshQR(ctx context.Context) error {
	o.mu.Lock()
	if err := o.checkOpen(); err != nil {
		o.mu.Unlock()
		return err
	}
	flow := o.qr
	o.mu.Unlock()
	if flow == nil {
		return ErrNoQRFlow
	}

	err := flow.Refresh(ctx)
	o.mu.Lock()
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
	return err
}

// Wait blocks until the checkout succeeded and navigated, is closed, or ctx
// is done.
func (o *Orchestrator) Wait(ctx context.Context, poll time.Duration) (Snapshot, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		s := o.Snapshot()
		if s.Navigated || s.View == ViewClosed {
			return s, nil
		}
		if s.QR != nil && s.QR.State.Terminal() && s.QR.State != qr.StateSucceeded {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}

// succeed switches to the success view once and schedules navigation to
// the dashboard.
func (o *Orchestrator) succeed(m Method, paymentRef string) {
	o.mu.Lock()
	if o.paymentRef != "" || o.closed {
		o.mu.Unlock()
		return
	}
	if paymentRef == "" {
		paymentRef = string(m)
	}
	o.paymentRef = paymentRef
	o.view = ViewSuccess
	o.redirect = time.AfterFunc(o.deps.RedirectDelay, o.navigate)
	o.touchLocked()
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) navigate() {
	o.mu.Lock()
	if o.closed || o.navigated {
		o.mu.Unlock()
		return
	}
	o.navigated = true
	o.redirect = nil
	o.touchLocked()
	o.mu.Unlock()

	if o.deps.Navigator != nil {
		o.deps.Navigator.Navigate(DashboardPath)
	}
	o.publish()
}

// Close tears down the poller, any pending intent retry and the redirect
// timer. It is idempotent.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.view != ViewSuccess {
		o.view = ViewClosed
	}
	if o.redirect != nil {
		o.redirect.Stop()
		o.redirect = nil
	}
	if o.cancelInit != nil {
		o.cancelInit()
		o.cancelInit = nil
	}
	flow := o.qr
	o.touchLocked()
	o.mu.Unlock()

	if flow != nil {
		flow.Stop()
	}
	o.publish()
}

func (o *Orchestrator) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	s := Snapshot{
		ID:            o.id,
		UserID:        o.userID,
		ProjectID:     o.project.ID,
		ProjectTitle:  o.project.Title,
		Amount:        o.amount,
		AmountDisplay: domain.FormatAmount(o.amount),
		Currency:      o.deps.Intent.Currency,
		View:          o.view,
		Method:        o.method,
		PaymentRef:    o.paymentRef,
		Navigated:     o.navigated,
		CreatedAt:     o.createdAt,
		UpdatedAt:     o.updatedAt,
	}
	if o.view == ViewSuccess {
		s.RedirectTo = DashboardPath
	}
	if o.intent != nil && o.method == MethodCard {
		cp := *o.intent
		s.Intent = &cp
	}
	cardFlow, qrFlow := o.card, o.qr
	o.mu.Unlock()

	if cardFlow != nil {
		cs := cardFlow.Snapshot()
		s.Card = &cs
	}
	if qrFlow != nil {
		qs := qrFlow.Snapshot()
		s.QR = &qs
	}
	return s
}

func (o *Orchestrator) checkOpen() error {
	if o.closed {
		return ErrClosed
	}
	if o.paymentRef != "" {
		return ErrCompleted
	}
	return nil
}

// unmountLocked drops both flows and returns a QR flow that still has to
// be stopped outside the lock.
func (o *Orchestrator) unmountLocked() *qr.Flow {
	if o.cancelInit != nil {
		o.cancelInit()
		o.cancelInit = nil
	}
	o.intentGen++
	o.intent = nil
	o.card = nil
	flow := o.qr
	o.qr = nil
	return flow
}

func (o *Orchestrator) touchLocked() {
	o.updatedAt = time.Now()
}

func (o *Orchestrator) publish() {
	if o.deps.Observer != nil {
		o.deps.Observer(o.Snapshot())
	}
}
