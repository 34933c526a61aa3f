package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
)

type fakeAuth struct {
	loginErr  error
	logoutErr error
	logouts   int32
}

func (f *fakeAuth) Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &apiclient.AuthResult{Token: "tok-" + creds.Email, User: domain.User{ID: "u1", Email: creds.Email, Role: domain.RoleUser}}, nil
}

func (f *fakeAuth) Register(ctx context.Context, reg apiclient.Registration) (*apiclient.AuthResult, error) {
	return &apiclient.AuthResult{Token: "tok-new", User: domain.User{ID: "u2", Name: reg.Name, Email: reg.Email}}, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	atomic.AddInt32(&f.logouts, 1)
	return f.logoutErr
}

func (f *fakeAuth) Me(ctx context.Context) (*domain.User, error) {
	return &domain.User{ID: "u1", Email: "a@b.c", Name: "Refreshed"}, nil
}

// countingStore wraps a Store and counts conditional deletes that removed
// a record.
type countingStore struct {
	Store
	deletes int32
}

func (c *countingStore) DeleteIfToken(ctx context.Context, id, token string) (bool, error) {
	deleted, err := c.Store.DeleteIfToken(ctx, id, token)
	if deleted {
		atomic.AddInt32(&c.deletes, 1)
	}
	return deleted, err
}

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, 0)
}

func TestSession_LoginPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)

	sess := New("sid-1", store)
	user, err := sess.Login(ctx, &fakeAuth{}, "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok-a@b.c", sess.Token())

	restored, err := Open(ctx, "sid-1", store)
	require.NoError(t, err)
	assert.True(t, restored.Authenticated())
	assert.Equal(t, "a@b.c", restored.User().Email)
}

func TestSession_LoginValidation(t *testing.T) {
	sess := New("sid", setupRedisStore(t))

	_, err := sess.Login(context.Background(), &fakeAuth{}, " ", "x")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = sess.Login(context.Background(), &fakeAuth{loginErr: errors.New("bad credentials")}, "a@b.c", "x")
	assert.Error(t, err)
	assert.False(t, sess.Authenticated())
}

func TestSession_OpenUnknownIsAnonymous(t *testing.T) {
	sess, err := Open(context.Background(), "nope", setupRedisStore(t))
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.Nil(t, sess.User())
}

func TestSession_LogoutClearsEvenWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	auth := &fakeAuth{logoutErr: errors.New("backend down")}

	sess := New("sid-1", store)
	_, err := sess.Login(ctx, auth, "a@b.c", "secret")
	require.NoError(t, err)

	sess.Logout(ctx, auth)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.logouts))

	_, err = store.Load(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_HandleUnauthorizedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: setupRedisStore(t)}

	sess := New("sid-1", store)
	_, err := sess.Login(ctx, &fakeAuth{}, "a@b.c", "secret")
	require.NoError(t, err)
	token := sess.Token()

	var notified int32
	sess.OnUnauthorized(func() { atomic.AddInt32(&notified, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.HandleUnauthorized(ctx, token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.deletes))
	assert.False(t, sess.Authenticated())
}

func TestSession_HandleUnauthorizedIgnoresStaleToken(t *testing.T) {
	ctx := context.Background()
	sess := New("sid-1", setupRedisStore(t))
	_, err := sess.Login(ctx, &fakeAuth{}, "a@b.c", "secret")
	require.NoError(t, err)

	var notified int32
	sess.OnUnauthorized(func() { atomic.AddInt32(&notified, 1) })

	sess.HandleUnauthorized(ctx, "some-older-token")
	assert.True(t, sess.Authenticated())
	assert.Zero(t, atomic.LoadInt32(&notified))
}

func TestSession_UnauthorizedOnOldCopyKeepsNewerLogin(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	auth := &fakeAuth{}

	first := New("sid-1", store)
	_, err := first.Login(ctx, auth, "a@b.c", "secret")
	require.NoError(t, err)
	oldToken := first.Token()

	stale, err := Open(ctx, "sid-1", store)
	require.NoError(t, err)
	var notified int32
	stale.OnUnauthorized(func() { atomic.AddInt32(&notified, 1) })

	second, err := Open(ctx, "sid-1", store)
	require.NoError(t, err)
	_, err = second.Login(ctx, auth, "x@y.z", "secret")
	require.NoError(t, err)

	stale.HandleUnauthorized(ctx, oldToken)
	assert.False(t, stale.Authenticated())
	assert.Zero(t, atomic.LoadInt32(&notified))

	rec, err := store.Load(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-x@y.z", rec.Token)
}

func TestSession_UnauthorizedAcrossOpenedCopiesNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: setupRedisStore(t)}

	owner := New("sid-1", store)
	_, err := owner.Login(ctx, &fakeAuth{}, "a@b.c", "secret")
	require.NoError(t, err)
	token := owner.Token()

	var notified int32
	copies := make([]*Session, 10)
	for i := range copies {
		copies[i], err = Open(ctx, "sid-1", store)
		require.NoError(t, err)
		copies[i].OnUnauthorized(func() { atomic.AddInt32(&notified, 1) })
	}

	var wg sync.WaitGroup
	for _, c := range copies {
		wg.Add(1)
		go func(c *Session) {
			defer wg.Done()
			c.HandleUnauthorized(ctx, token)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.deletes))
	_, err = store.Load(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_DeleteIfToken(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, store.Save(ctx, "default", &Record{Token: "tok-2"}))

	deleted, err := store.DeleteIfToken(ctx, "default", "tok-1")
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = store.Load(ctx, "default")
	require.NoError(t, err)

	deleted, err = store.DeleteIfToken(ctx, "default", "tok-2")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_Refresh(t *testing.T) {
	ctx := context.Background()
	sess := New("sid-1", setupRedisStore(t))

	_, err := sess.Refresh(ctx, &fakeAuth{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sess.Register(ctx, &fakeAuth{}, "Ann", "a@b.c", "pw")
	require.NoError(t, err)
	user, err := sess.Refresh(ctx, &fakeAuth{})
	require.NoError(t, err)
	assert.Equal(t, "Refreshed", user.Name)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.yaml"))

	_, err := store.Load(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)

	sess := New("default", store)
	_, err = sess.Login(ctx, &fakeAuth{}, "a@b.c", "pw")
	require.NoError(t, err)

	restored, err := Open(ctx, "default", store)
	require.NoError(t, err)
	assert.Equal(t, "tok-a@b.c", restored.Token())
	assert.Equal(t, "u1", restored.User().ID)

	require.NoError(t, store.Delete(ctx, "default"))
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_LoadSlidesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sid-ttl", &Record{Token: "t"}))

	mr.FastForward(40 * time.Second)
	assert.Equal(t, 20*time.Second, mr.TTL(sessionKeyPrefix+"sid-ttl"))

	_, err = store.Load(ctx, "sid-ttl")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(sessionKeyPrefix+"sid-ttl"))
}
