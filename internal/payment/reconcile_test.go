package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/events"
	"github.com/Sung-star/storefront-checkout/internal/idempotency"
	"github.com/Sung-star/storefront-checkout/internal/session"
)

type fakeVerifier struct {
	calls atomic.Int32
	err   error
	block chan struct{}
	token string
}

func (f *fakeVerifier) VerifyPayment(ctx context.Context, token string, params url.Values) error {
	f.calls.Add(1)
	f.token = token
	if f.block != nil {
		<-f.block
	}
	return f.err
}

type fakeCarts struct{ cleared []string }

func (f *fakeCarts) ClearCart(ctx context.Context, sessionID string) cart.Cart {
	f.cleared = append(f.cleared, sessionID)
	return cart.Cart{}
}

type fakeDrafts struct {
	discarded []string
	err       error
}

func (f *fakeDrafts) Discard(ctx context.Context, sessionID string) error {
	f.discarded = append(f.discarded, sessionID)
	return f.err
}

// memRecords mirrors the conditional semantics of idempotency.Store.
type memRecords struct {
	mu      sync.Mutex
	recs    map[string]*idempotency.Record
	failPut error
}

func newMemRecords() *memRecords {
	return &memRecords{recs: map[string]*idempotency.Record{}}
}

func (m *memRecords) CreateIfNotExists(ctx context.Context, key, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return false, m.failPut
	}
	if _, ok := m.recs[key]; ok {
		return false, nil
	}
	m.recs[key] = &idempotency.Record{IdempotencyKey: key, Status: idempotency.StatusInProgress, Reference: ref}
	return true, nil
}

func (m *memRecords) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRecords) Reclaim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key]
	if !ok || r.Status != idempotency.StatusFailed {
		return false, nil
	}
	r.Status = idempotency.StatusInProgress
	return true, nil
}

func (m *memRecords) MarkDone(ctx context.Context, key, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recs[key]
	r.Status, r.ResponseBody, r.ResponseStatus = idempotency.StatusDone, body, status
	return nil
}

func (m *memRecords) MarkFailed(ctx context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recs[key]
	r.Status, r.Note = idempotency.StatusFailed, note
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CheckoutEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	verifier *fakeVerifier
	carts    *fakeCarts
	drafts   *fakeDrafts
	records  *memRecords
	pub      *recordingPublisher
	rec      *Reconciler
}

func newFixture() *fixture {
	f := &fixture{
		verifier: &fakeVerifier{},
		carts:    &fakeCarts{},
		drafts:   &fakeDrafts{},
		records:  newMemRecords(),
		pub:      &recordingPublisher{},
	}
	f.rec = NewReconciler(f.verifier, f.carts, f.drafts, f.records, f.pub, nil)
	f.rec.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

var shopper = session.Session{ID: "sid-1", AuthToken: "tok"}

func returnQuery(code string) url.Values {
	return url.Values{
		ParamTxnRef:       {"ORD-77"},
		ParamAmount:       {"15000000"},
		ParamResponseCode: {code},
		ParamSecureHash:   {"abc123"},
	}
}

func TestReconcile_MissingParametersSkipVerification(t *testing.T) {
	f := newFixture()

	q := returnQuery("00")
	q.Del(ParamSecureHash)
	out, err := f.rec.Reconcile(context.Background(), shopper, q)
	require.NoError(t, err)
	assert.Equal(t, StateFailure, out.State)
	assert.Equal(t, MsgInvalidReturn, out.Message)

	q = returnQuery("")
	out, err = f.rec.Reconcile(context.Background(), shopper, q)
	require.NoError(t, err)
	assert.Equal(t, StateFailure, out.State)

	assert.Zero(t, f.verifier.calls.Load())
	assert.Empty(t, f.records.recs)
}

func TestReconcile_SuccessClearsCartAndDraft(t *testing.T) {
	f := newFixture()

	out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, "ORD-77", out.OrderRef)
	assert.Equal(t, int64(150000), out.Amount)
	assert.Equal(t, successActions, out.Actions)
	assert.False(t, out.Replayed)
	assert.Equal(t, "tok", f.verifier.token)
	assert.Equal(t, []string{"sid-1"}, f.carts.cleared)
	assert.Equal(t, []string{"sid-1"}, f.drafts.discarded)

	rec := f.records.recs["ORD-77#abc123"]
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, http.StatusOK, rec.ResponseStatus)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.PaymentReconciled, f.pub.events[0].Event)
	assert.Equal(t, StateSuccess, f.pub.events[0].State)
}

func TestReconcile_InvalidAmountIsZero(t *testing.T) {
	f := newFixture()
	q := returnQuery("00")
	q.Set(ParamAmount, "n/a")

	out, err := f.rec.Reconcile(context.Background(), shopper, q)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
	assert.Zero(t, out.Amount)
}

func TestReconcile_RejectionMessages(t *testing.T) {
	cases := []struct {
		name string
		code string
		err  error
		want string
	}{
		{"cancelled at gateway", "24", &backend.APIError{Status: 400, Message: "Invalid signature"}, MsgCancelled},
		{"server message", "00", &backend.APIError{Status: 400, Message: "Checksum mismatch"}, "Checksum mismatch"},
		{"generic signature failure", "00", &backend.APIError{Status: 400}, MsgSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.verifier.err = tc.err

			out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery(tc.code))
			require.NoError(t, err)
			assert.Equal(t, StateFailure, out.State)
			assert.Equal(t, tc.want, out.Message)
			assert.Equal(t, failureActions, out.Actions)
			assert.Empty(t, f.carts.cleared)
			assert.Empty(t, f.drafts.discarded)

			rec := f.records.recs["ORD-77#abc123"]
			assert.Equal(t, idempotency.StatusDone, rec.Status)
			assert.Equal(t, http.StatusPaymentRequired, rec.ResponseStatus)
		})
	}
}

func TestReconcile_ReplaysStoredOutcome(t *testing.T) {
	f := newFixture()

	first, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	second, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.verifier.calls.Load())
	assert.True(t, second.Replayed)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.OrderRef, second.OrderRef)
	assert.Equal(t, first.Amount, second.Amount)
	assert.Len(t, f.carts.cleared, 1)
}

func TestReconcile_InProgressElsewhereIsVerifying(t *testing.T) {
	f := newFixture()
	_, err := f.records.CreateIfNotExists(context.Background(), "ORD-77#abc123", "ORD-77")
	require.NoError(t, err)

	out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	assert.Equal(t, StateVerifying, out.State)
	assert.Zero(t, f.verifier.calls.Load())
}

func TestReconcile_InfraFailureAllowsRetry(t *testing.T) {
	f := newFixture()
	f.verifier.err = backend.ErrUnavailable

	out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	assert.Equal(t, StateFailure, out.State)
	assert.Equal(t, idempotency.StatusFailed, f.records.recs["ORD-77#abc123"].Status)

	f.verifier.err = nil
	out, err = f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
	assert.False(t, out.Replayed)
	assert.Equal(t, int32(2), f.verifier.calls.Load())
}

func TestReconcile_UnauthorizedIsReturned(t *testing.T) {
	f := newFixture()
	f.verifier.err = &backend.APIError{Status: http.StatusUnauthorized, Message: "expired"}

	out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrUnauthorized))
	assert.Equal(t, StateFailure, out.State)
	assert.Equal(t, idempotency.StatusFailed, f.records.recs["ORD-77#abc123"].Status)
}

func TestReconcile_StoreErrorStillVerifies(t *testing.T) {
	f := newFixture()
	f.records.failPut = errors.New("throttled")

	out, err := f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, int32(1), f.verifier.calls.Load())
}

func TestReconcile_WithoutRecordStore(t *testing.T) {
	f := newFixture()
	r := NewReconciler(f.verifier, f.carts, f.drafts, nil, nil, nil)

	out, err := r.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
}

func TestReconcile_ConcurrentReturnsVerifyOnce(t *testing.T) {
	f := newFixture()
	f.verifier.block = make(chan struct{})

	const n = 5
	var wg sync.WaitGroup
	outs := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], _ = f.rec.Reconcile(context.Background(), shopper, returnQuery("00"))
		}(i)
	}

	require.Eventually(t, func() bool { return f.verifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.verifier.block)
	wg.Wait()

	assert.Equal(t, int32(1), f.verifier.calls.Load())
	for _, out := range outs {
		assert.NotEqual(t, StateFailure, out.State)
	}
}

func TestReconcile_RedisRecordsAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	verifier := &fakeVerifier{}
	carts := &fakeCarts{}
	// two API instances share the store but not their in-process collapsing
	a := NewReconciler(verifier, carts, &fakeDrafts{}, idempotency.NewRedisStore(client, time.Hour), nil, nil)
	b := NewReconciler(verifier, carts, &fakeDrafts{}, idempotency.NewRedisStore(client, time.Hour), nil, nil)

	first, err := a.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)
	second, err := b.Reconcile(context.Background(), shopper, returnQuery("00"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), verifier.calls.Load())
	assert.Equal(t, StateSuccess, first.State)
	assert.Equal(t, StateSuccess, second.State)
	assert.True(t, second.Replayed)
	assert.Len(t, carts.cleared, 1)
}
