package intent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
)

type fakeCreator struct {
	mu       sync.Mutex
	calls    []time.Time
	requests []apiclient.PaymentIntentRequest
	errs     []error // consumed per call; nil entry or exhausted list means success
}

func (f *fakeCreator) CreatePaymentIntent(ctx context.Context, req apiclient.PaymentIntentRequest) (*apiclient.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, time.Now())
	f.requests = append(f.requests, req)
	n := len(f.calls) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	return &apiclient.PaymentIntent{ClientSecret: "pi_1_secret_abc", PaymentIntentID: "pi_1"}, nil
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: 20 * time.Millisecond, Currency: "usd"}
}

var serverErr = &apiclient.Error{Kind: apiclient.KindServer, Status: 500, Message: "Server error. Please try again later."}

func TestInitialize_ParsesStringPrice(t *testing.T) {
	creator := &fakeCreator{}
	res, err := New(creator, testConfig()).Initialize(context.Background(), Request{ProjectID: "p1", Price: "49.99"})
	require.NoError(t, err)

	assert.Equal(t, "pi_1_secret_abc", res.ClientSecret)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, creator.requests, 1)
	assert.InDelta(t, 49.99, creator.requests[0].Amount, 1e-9)
	assert.Equal(t, "usd", creator.requests[0].Currency)
	assert.Equal(t, "p1", creator.requests[0].ProjectID)
}

func TestInitialize_InvalidPriceNeverCallsBackend(t *testing.T) {
	for _, price := range []domain.Price{"abc", "", "0", "-10"} {
		creator := &fakeCreator{}
		_, err := New(creator, testConfig()).Initialize(context.Background(), Request{ProjectID: "p1", Price: price})
		require.Error(t, err)

		f, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, MsgInvalidPrice, f.Message)
		assert.Equal(t, ClassValidation, f.Class)
		assert.True(t, errors.Is(err, domain.ErrInvalidPrice))
		assert.Zero(t, creator.count(), "price %q", price)
	}
}

func TestInitialize_ExactlyThreeRetriesWithFixedDelay(t *testing.T) {
	creator := &fakeCreator{errs: []error{serverErr, serverErr, serverErr, serverErr, nil}}
	cfg := testConfig()

	var attempts []int
	cfg.OnAttempt = func(attempt int, err error) { attempts = append(attempts, attempt) }

	_, err := New(creator, cfg).Initialize(context.Background(), Request{ProjectID: "p1", Price: "10"})
	require.Error(t, err)

	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.True(t, f.Exhausted)
	assert.Equal(t, 4, f.Attempts)
	assert.Equal(t, ClassServer, f.Class)
	assert.Equal(t, msgServer, f.Message)

	require.Equal(t, 4, creator.count())
	assert.Equal(t, []int{1, 2, 3, 4}, attempts)
	for i := 1; i < len(creator.calls); i++ {
		gap := creator.calls[i].Sub(creator.calls[i-1])
		assert.GreaterOrEqual(t, gap, cfg.RetryDelay)
	}

	// manual retry runs a fresh round
	res, err := New(creator, cfg).Initialize(context.Background(), Request{ProjectID: "p1", Price: "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestInitialize_RecoversOnRetry(t *testing.T) {
	netErr := &apiclient.Error{Kind: apiclient.KindNetwork, Message: "Network error"}
	creator := &fakeCreator{errs: []error{netErr}}

	res, err := New(creator, testConfig()).Initialize(context.Background(), Request{ProjectID: "p1", Price: "10"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestInitialize_UnauthorizedIsNotRetried(t *testing.T) {
	creator := &fakeCreator{errs: []error{&apiclient.Error{Kind: apiclient.KindUnauthorized, Status: 401}}}

	_, err := New(creator, testConfig()).Initialize(context.Background(), Request{ProjectID: "p1", Price: "10"})
	require.Error(t, err)
	f, _ := AsFailure(err)
	assert.Equal(t, ClassUnauthorized, f.Class)
	assert.False(t, f.Exhausted)
	assert.Equal(t, 1, creator.count())
}

func TestInitialize_ValidationMessageFromServer(t *testing.T) {
	v := &apiclient.Error{Kind: apiclient.KindClient, Status: 400, Message: "You already own this project"}
	creator := &fakeCreator{errs: []error{v, v, v, v}}

	_, err := New(creator, testConfig()).Initialize(context.Background(), Request{ProjectID: "p1", Price: "10"})
	f, _ := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, "You already own this project", f.Message)
}

func TestInitialize_CancelStopsBackoff(t *testing.T) {
	creator := &fakeCreator{errs: []error{serverErr, serverErr, serverErr, serverErr}}
	cfg := testConfig()
	cfg.RetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := New(creator, cfg).Initialize(ctx, Request{ProjectID: "p1", Price: "10"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, creator.count())
}
