package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
)

type memRecorder struct {
	mu       sync.Mutex
	outcomes map[string]string
	calls    int
}

func (r *memRecorder) Record(ctx context.Context, s Snapshot, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]string)
	}
	r.outcomes[s.ID] = outcome
	r.calls++
	return nil
}

func (r *memRecorder) get(id string) (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[id], r.calls
}

func newTestRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRepository(client, time.Hour), mr
}

func newTestService(t *testing.T) (*Service, *RedisRepository, *memRecorder) {
	t.Helper()
	repo, _ := newTestRepo(t)
	rec := &memRecorder{}
	svc := NewService(ServiceConfig{
		Intent:        intent.Config{MaxRetries: 1, RetryDelay: time.Millisecond},
		QR:            qr.Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second},
		RedirectDelay: 10 * time.Millisecond,
		IdleTimeout:   time.Minute,
	}, repo, rec)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc, repo, rec
}

func TestRedisRepository(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	snap := &Snapshot{ID: "c1", UserID: "u1", ProjectID: "p1", View: ViewSelect}
	require.NoError(t, repo.Save(ctx, snap))

	assert.True(t, mr.Exists("checkout:c1"))
	assert.Equal(t, time.Hour, mr.TTL("checkout:c1"))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProjectID)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Save(ctx, &Snapshot{ID: "c2", UserID: "u1"}))
	mr.Del("checkout:c2")

	ids, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestService_BeginPersistsAndChecksOwner(t *testing.T) {
	svc, repo, _ := newTestService(t)
	b := newFakeBackend()
	ctx := context.Background()

	snap, err := svc.Begin(ctx, b, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, ViewSelect, snap.View)
	assert.Equal(t, "$49.99", snap.AmountDisplay)
	assert.Equal(t, 1, svc.Active())

	stored, err := repo.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	_, err = svc.Get(ctx, "u2", snap.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.SelectMethod(ctx, "u2", snap.ID, MethodQR)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, "u1", "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_GuardRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	b := newFakeBackend()

	_, err := svc.Begin(context.Background(), b, "u1", "badprice")
	g, ok := AsGuardError(err)
	require.True(t, ok)
	assert.Equal(t, "Pricing Error", g.Title)
	assert.Zero(t, svc.Active())
	assert.Zero(t, b.paymentCalls())
}

func TestService_QRSuccessRecordedOnceAndSwept(t *testing.T) {
	svc, repo, rec := newTestService(t)
	b := newFakeBackend()
	b.setQRStatus(domain.PaymentSucceeded)
	ctx := context.Background()

	snap, err := svc.Begin(ctx, b, "u1", "p1")
	require.NoError(t, err)

	_, err = svc.SelectMethod(ctx, "u1", snap.ID, MethodQR)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := svc.Get(ctx, "u1", snap.ID)
		return err == nil && s.Navigated
	}, time.Second, 5*time.Millisecond)

	outcome, calls := rec.get(snap.ID)
	assert.Equal(t, "succeeded", outcome)
	assert.Equal(t, 1, calls)

	assert.Equal(t, 1, svc.Sweep(ctx))
	assert.Zero(t, svc.Active())

	_, calls = rec.get(snap.ID)
	assert.Equal(t, 1, calls)

	// the stored snapshot outlives the live checkout
	stored, err := svc.Get(ctx, "u1", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, ViewSuccess, stored.View)
	_, err = svc.RefreshQR(ctx, "u1", snap.ID)
	assert.ErrorIs(t, err, ErrClosed)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)

	_, err = repo.Get(ctx, snap.ID)
	require.NoError(t, err)
}

func TestService_CloseRecordsAbandoned(t *testing.T) {
	svc, _, rec := newTestService(t)
	b := newFakeBackend()
	ctx := context.Background()

	snap, err := svc.Begin(ctx, b, "u1", "p1")
	require.NoError(t, err)

	closed, err := svc.Close(ctx, "u1", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, ViewClosed, closed.View)

	outcome, _ := rec.get(snap.ID)
	assert.Equal(t, "abandoned", outcome)
	assert.Zero(t, svc.Active())
}

func TestService_SweepRetiresIdle(t *testing.T) {
	repo, _ := newTestRepo(t)
	svc := NewService(ServiceConfig{IdleTimeout: 10 * time.Millisecond}, repo, nil)
	b := newFakeBackend()

	_, err := svc.Begin(context.Background(), b, "u1", "p1")
	require.NoError(t, err)
	assert.Zero(t, svc.Sweep(context.Background()))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, svc.Sweep(context.Background()))
}

func TestSweeper_StartStop(t *testing.T) {
	svc := NewService(ServiceConfig{}, nil, nil)
	sw := NewSweeper(svc, "@every 1s")
	require.NoError(t, sw.Start())
	sw.Stop()

	bad := NewSweeper(svc, "not a schedule")
	assert.Error(t, bad.Start())
	bad.Stop()
}
