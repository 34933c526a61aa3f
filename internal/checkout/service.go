package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/metrics"
	"github.com/akeditz/storefront/internal/payments/card"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
)

const DefaultIdleTimeout = 30 * time.Minute

// Repository stores checkout snapshots.
type Repository interface {
	Save(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	ListByUser(ctx context.Context, userID string) ([]string, error)
}

// Recorder keeps a ledger of finished checkouts.
type Recorder interface {
	Record(ctx context.Context, s Snapshot, outcome string) error
}

// Client is the session-bound backend a gateway checkout runs against.
type Client interface {
	Backend
	ProjectGetter
}

type ServiceConfig struct {
	Intent        intent.Config
	QR            qr.Config
	RedirectDelay time.Duration
	IdleTimeout   time.Duration
}

type entry struct {
	orch     *Orchestrator
	lastSeen time.Time
	finished bool
}

// Service keeps the live checkouts of the gateway, keyed by checkout id.
type Service struct {
	cfg      ServiceConfig
	repo     Repository
	recorder Recorder

	mu   sync.Mutex
	live map[string]*entry
}

// NewService creates a Service. repo and recorder may be nil.
func NewService(cfg ServiceConfig, repo Repository, recorder Recorder) *Service {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Service{
		cfg:      cfg,
		repo:     repo,
		recorder: recorder,
		live:     make(map[string]*entry),
	}
}

// Begin starts a checkout of projectID for userID.
func (s *Service) Begin(ctx context.Context, client Client, userID, projectID string) (Snapshot, error) {
	log := logger.New(ctx)
	id := uuid.NewString()

	intentCfg := s.cfg.Intent
	intentCfg.OnAttempt = metrics.IntentAttempt
	qrCfg := s.cfg.QR
	qrCfg.OnPoll = func(status domain.PaymentStatus, err error) {
		metrics.QRPoll(string(status), err)
	}

	orch, err := Begin(ctx, client, id, userID, projectID, Deps{
		Backend:       client,
		Intent:        intentCfg,
		QR:            qrCfg,
		RedirectDelay: s.cfg.RedirectDelay,
		Navigator: NavigatorFunc(func(path string) {
			logger.New(context.Background()).LogInfof("checkout.navigate", "checkout %s -> %s", id, path)
		}),
		Observer: s.observe,
	})
	if err != nil {
		if g, ok := AsGuardError(err); ok {
			metrics.CheckoutRejected(g.Reason)
			log.LogWarnf("checkout.begin", "project %s rejected: %s", projectID, g.Title)
		}
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.live[id] = &entry{orch: orch, lastSeen: time.Now()}
	active := len(s.live)
	s.mu.Unlock()

	metrics.CheckoutStarted()
	metrics.SetActiveCheckouts(active)
	log.LogInfof("checkout.begin", "checkout %s started for project %s", id, projectID)

	snap := orch.Snapshot()
	s.save(snap)
	return snap, nil
}

// Get returns the live state of a checkout, or its last stored snapshot.
func (s *Service) Get(ctx context.Context, userID, id string) (Snapshot, error) {
	s.mu.Lock()
	e := s.live[id]
	if e != nil {
		e.lastSeen = time.Now()
	}
	s.mu.Unlock()

	if e != nil {
		if e.orch.UserID() != userID {
			return Snapshot{}, ErrForbidden
		}
		return e.orch.Snapshot(), nil
	}

	if s.repo == nil {
		return Snapshot{}, ErrNotFound
	}
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if stored.UserID != userID {
		return Snapshot{}, ErrForbidden
	}
	return *stored, nil
}

// List returns the stored checkouts of a user.
func (s *Service) List(ctx context.Context, userID string) ([]Snapshot, error) {
	if s.repo == nil {
		return nil, nil
	}
	ids, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Get(ctx, userID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Service) SelectMethod(ctx context.Context, userID, id string, m Method) (Snapshot, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	err = orch.SelectMethod(ctx, m)
	return orch.Snapshot(), err
}

func (s *Service) RetryIntent(ctx context.Context, userID, id string) (Snapshot, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	err = orch.RetryIntent(ctx)
	return orch.Snapshot(), err
}

func (s *Service) AcceptTerms(ctx context.Context, userID, id string, accepted bool) (Snapshot, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	err = orch.AcceptTerms(accepted)
	return orch.Snapshot(), err
}

func (s *Service) SubmitCard(ctx context.Context, userID, id string, c card.Confirmer) (Snapshot, *card.Outcome, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, nil, err
	}
	out, err := orch.SubmitCard(ctx, c)
	return orch.Snapshot(), out, err
}

func (s *Service) RefreshQR(ctx context.Context, userID, id string) (Snapshot, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	err = orch.RefreshQR(ctx)
	return orch.Snapshot(), err
}

// Close ends a checkout and forgets it.
func (s *Service) Close(ctx context.Context, userID, id string) (Snapshot, error) {
	orch, err := s.lookup(ctx, userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := s.retire(ctx, id)
	if snap == nil {
		return orch.Snapshot(), nil
	}
	return *snap, nil
}

// Sweep retires checkouts that navigated away, were closed, or have been
// idle longer than the idle timeout. It returns how many were retired.
func (s *Service) Sweep(ctx context.Context) int {
	now := time.Now()
	var ids []string

	s.mu.Lock()
	for id, e := range s.live {
		if e.orch.Closed() || now.Sub(e.lastSeen) > s.cfg.IdleTimeout {
			ids = append(ids, id)
			continue
		}
		if e.orch.Snapshot().Navigated {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.retire(ctx, id)
	}
	return len(ids)
}

// Shutdown retires every live checkout.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.retire(ctx, id)
	}
}

// Active returns the number of live checkouts.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *Service) lookup(ctx context.Context, userID, id string) (*Orchestrator, error) {
	s.mu.Lock()
	e := s.live[id]
	if e != nil {
		e.lastSeen = time.Now()
	}
	s.mu.Unlock()

	if e == nil {
		// known but no longer running
		if s.repo != nil {
			if stored, err := s.repo.Get(ctx, id); err == nil {
				if stored.UserID != userID {
					return nil, ErrForbidden
				}
				return nil, ErrClosed
			}
		}
		return nil, ErrNotFound
	}
	if e.orch.UserID() != userID {
		return nil, ErrForbidden
	}
	return e.orch, nil
}

// retire closes a live checkout, removes it and records its outcome.
func (s *Service) retire(ctx context.Context, id string) *Snapshot {
	s.mu.Lock()
	e := s.live[id]
	if e == nil {
		s.mu.Unlock()
		return nil
	}
	delete(s.live, id)
	active := len(s.live)
	s.mu.Unlock()

	e.orch.Close()
	metrics.SetActiveCheckouts(active)

	snap := e.orch.Snapshot()
	s.finish(ctx, e, snap)
	return &snap
}

// observe persists every state change and records a success as soon as it
// happens.
func (s *Service) observe(snap Snapshot) {
	s.save(snap)
	if snap.View != ViewSuccess {
		return
	}

	s.mu.Lock()
	e := s.live[snap.ID]
	s.mu.Unlock()
	if e != nil {
		s.finish(context.Background(), e, snap)
	}
}

func (s *Service) finish(ctx context.Context, e *entry, snap Snapshot) {
	s.mu.Lock()
	if e.finished {
		s.mu.Unlock()
		return
	}
	e.finished = true
	s.mu.Unlock()

	outcome := snap.Outcome()
	metrics.CheckoutFinished(string(snap.Method), outcome)
	logger.New(ctx).LogInfof("checkout.finish", "checkout %s finished: %s", snap.ID, outcome)

	if s.recorder != nil {
		if err := s.recorder.Record(context.WithoutCancel(ctx), snap, outcome); err != nil {
			logger.New(ctx).LogError("checkout.audit", err)
		}
	}
}

func (s *Service) save(snap Snapshot) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.repo.Save(ctx, &snap); err != nil {
		logger.New(ctx).LogError("checkout.save", err)
	}
}
