package resilient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stub is a fake remote: it fails with a transport error while broken.
type stub struct {
	id     int
	broken *atomic.Bool
	calls  *atomic.Int32
}

func (s stub) Echo(v string) (string, error) {
	s.calls.Add(1)
	if s.broken.Load() {
		return "", &TransportError{Op: "echo", Err: errors.New("connection refused")}
	}
	return v, nil
}

type fakeHandle struct {
	mu          sync.Mutex
	resolves    int
	invalidated int
	failResolve bool
	broken      atomic.Bool
	calls       atomic.Int32
	// heal is run on each Resolve, e.g. to repair the remote
	heal func()
}

func (h *fakeHandle) Resolve(context.Context) (stub, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failResolve {
		return stub{}, errors.New("no route to host")
	}
	h.resolves++
	if h.heal != nil {
		h.heal()
	}
	return stub{id: h.resolves, broken: &h.broken, calls: &h.calls}, nil
}

func (h *fakeHandle) Invalidate() {
	h.mu.Lock()
	h.invalidated++
	h.mu.Unlock()
}

func (h *fakeHandle) resolveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolves
}

func echo(ctx context.Context, c *Client[stub], v string) (string, error) {
	return Call(ctx, c, func(_ context.Context, s stub) (string, error) { return s.Echo(v) })
}

func TestDo_LazyConnectOnFirstCall(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{})

	assert.Equal(t, 0, h.resolveCount())
	out, err := echo(context.Background(), c, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, 1, h.resolveCount())

	_, _ = echo(context.Background(), c, "again")
	assert.Equal(t, 1, h.resolveCount())
}

func TestDo_TransportFailureReconnectsAndRetriesOnce(t *testing.T) {
	h := &fakeHandle{}
	h.heal = func() { h.broken.Store(false) }
	var reconnects, retries atomic.Int32
	c := New[stub](h, Config{
		OnReconnect: func() { reconnects.Add(1) },
		OnRetry:     func() { retries.Add(1) },
	})

	_, err := echo(context.Background(), c, "warmup")
	require.NoError(t, err)
	h.calls.Store(0)

	h.broken.Store(true)
	out, err := echo(context.Background(), c, "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	assert.Equal(t, int32(2), h.calls.Load(), "one failed attempt and one retry")
	assert.Equal(t, 2, h.resolveCount())
	assert.Equal(t, int32(1), reconnects.Load())
	assert.Equal(t, int32(1), retries.Load())
	assert.Equal(t, 1, h.invalidated)
}

func TestDo_SecondTransportFailurePropagates(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{})
	_, _ = echo(context.Background(), c, "warmup")
	h.calls.Store(0)

	h.broken.Store(true)
	_, err := echo(context.Background(), c, "ping")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(2), h.calls.Load(), "no second retry")
	assert.Equal(t, 2, h.resolveCount(), "exactly one reconnect")
}

func TestDo_ApplicationErrorIsNotRetried(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{})
	appErr := errors.New("device not found")

	calls := 0
	err := c.Do(context.Background(), func(context.Context, stub) error {
		calls++
		return appErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErr)
	assert.True(t, IsApplication(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, h.resolveCount())
}

func TestDo_ReconnectFailureSurfacesAsTransport(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{})
	_, _ = echo(context.Background(), c, "warmup")

	h.broken.Store(true)
	h.mu.Lock()
	h.failResolve = true
	h.mu.Unlock()

	_, err := echo(context.Background(), c, "ping")
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	// the next call tries to connect again
	h.mu.Lock()
	h.failResolve = false
	h.mu.Unlock()
	h.broken.Store(false)
	out, err := echo(context.Background(), c, "back")
	require.NoError(t, err)
	assert.Equal(t, "back", out)
}

func TestDo_HungAttemptReconnectsWithFreshBudget(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{Classify: GRPCClassifier, AttemptTimeout: 50 * time.Millisecond})

	var attempts int
	var retryBudget time.Duration
	err := c.Do(context.Background(), func(ctx context.Context, _ stub) error {
		attempts++
		if attempts == 1 {
			// a connected peer that never answers
			<-ctx.Done()
			return status.FromContextError(ctx.Err()).Err()
		}
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		retryBudget = time.Until(dl)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, h.resolveCount(), "the hung stub was replaced")
	assert.Greater(t, retryBudget, 25*time.Millisecond, "the retry has its own deadline")
}

func TestDo_CallerDeadlineIsNotRetried(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{Classify: GRPCClassifier})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	err := c.Do(ctx, func(ctx context.Context, _ stub) error {
		attempts++
		<-ctx.Done()
		return status.FromContextError(ctx.Err()).Err()
	})
	require.Error(t, err)
	assert.True(t, IsApplication(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, h.resolveCount())
}

func TestDo_ConcurrentCallersShareOneReconnect(t *testing.T) {
	h := &fakeHandle{}
	c := New[stub](h, Config{})
	_, err := echo(context.Background(), c, "warmup")
	require.NoError(t, err)

	// every caller fails on generation 1 before anyone reconnects
	const n = 16
	var failed sync.WaitGroup
	failed.Add(n)
	release := make(chan struct{})
	h.heal = func() { h.broken.Store(false) }
	h.broken.Store(true)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			first := true
			errs[i] = c.Do(context.Background(), func(_ context.Context, s stub) error {
				if first {
					first = false
					failed.Done()
					<-release
					return &TransportError{Op: "echo", Err: errors.New("broken pipe")}
				}
				_, err := s.Echo("x")
				return err
			})
		}(i)
	}
	failed.Wait()
	close(release)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 2, h.resolveCount(), "initial connect plus a single reconnect")
	assert.Equal(t, uint64(2), c.Generation())
}

func TestGRPCClassifier(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, GRPCClassifier(ctx, nil))
	assert.True(t, IsTransport(GRPCClassifier(ctx, status.Error(codes.Unavailable, "conn refused"))))
	assert.True(t, IsTransport(GRPCClassifier(ctx, status.Error(codes.Canceled, "grpc: the client connection is closing"))))
	assert.True(t, IsApplication(GRPCClassifier(ctx, status.Error(codes.InvalidArgument, "blank device"))))
	assert.True(t, IsApplication(GRPCClassifier(ctx, errors.New("plain"))))

	assert.True(t, IsTransport(GRPCClassifier(ctx, status.Error(codes.DeadlineExceeded, "attempt timed out"))),
		"a hung peer with a live caller is a transport failure")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, IsApplication(GRPCClassifier(cctx, status.Error(codes.DeadlineExceeded, "context deadline exceeded"))))
	assert.True(t, IsApplication(GRPCClassifier(cctx, status.Error(codes.Canceled, "context canceled"))),
		"caller cancellation is not a transport failure")

	wrapped := GRPCClassifier(ctx, status.Error(codes.NotFound, "nope"))
	assert.Equal(t, codes.NotFound, status.Code(wrapped))
}
