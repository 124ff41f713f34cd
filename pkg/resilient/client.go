// Package resilient wraps a remote service stub with a single
// reconnect-and-retry on transport failure.
package resilient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteHandle resolves a fresh stub for the remote service. Resolve may be
// called repeatedly; each call re-binds and supersedes the previous stub.
type RemoteHandle[S any] interface {
	Resolve(ctx context.Context) (S, error)
	Invalidate()
}

type Config struct {
	Classify Classifier
	Logger   *zap.Logger
	Name     string
	// AttemptTimeout, when set, bounds each attempt on its own, so a hung
	// remote still leaves the retry a full budget.
	AttemptTimeout time.Duration

	// optional hooks, e.g. for metrics
	OnReconnect func()
	OnRetry     func()
}

// Client shares one stub among concurrent callers. Reconnects are
// serialized and keyed by a generation counter, so callers that failed on
// the same stub trigger a single reconnect between them.
type Client[S any] struct {
	handle RemoteHandle[S]
	cfg    Config

	mu    sync.RWMutex
	stub  S
	bound bool
	gen   uint64

	reconnectMu sync.Mutex
}

func New[S any](h RemoteHandle[S], cfg Config) *Client[S] {
	if cfg.Classify == nil {
		cfg.Classify = DefaultClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	return &Client[S]{handle: h, cfg: cfg}
}

func (c *Client[S]) current(ctx context.Context) (S, uint64, error) {
	c.mu.RLock()
	if c.bound {
		s, g := c.stub, c.gen
		c.mu.RUnlock()
		return s, g, nil
	}
	g := c.gen
	c.mu.RUnlock()
	return c.rebind(ctx, g)
}

// rebind resolves a new stub unless another caller already replaced the one
// that failed (generation seen).
func (c *Client[S]) rebind(ctx context.Context, seen uint64) (S, uint64, error) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.RLock()
	if c.bound && c.gen != seen {
		s, g := c.stub, c.gen
		c.mu.RUnlock()
		return s, g, nil
	}
	wasBound := c.bound
	c.mu.RUnlock()

	if wasBound {
		c.handle.Invalidate()
		c.mu.Lock()
		c.bound = false
		c.mu.Unlock()
	}

	s, err := c.handle.Resolve(ctx)
	if err != nil {
		var zero S
		return zero, seen, &TransportError{Op: "connect " + c.cfg.Name, Err: err}
	}

	c.mu.Lock()
	c.stub = s
	c.bound = true
	c.gen++
	g := c.gen
	c.mu.Unlock()

	if wasBound && c.cfg.OnReconnect != nil {
		c.cfg.OnReconnect()
	}
	c.cfg.Logger.Info("remote handle bound", zap.String("remote", c.cfg.Name), zap.Uint64("generation", g))
	return s, g, nil
}

// Do runs op against the current stub. A transport failure causes exactly
// one reconnect and one retry; application errors are returned as they are.
func (c *Client[S]) Do(ctx context.Context, op func(context.Context, S) error) error {
	stub, gen, err := c.current(ctx)
	if err != nil {
		return err
	}

	err = c.attempt(ctx, stub, op)
	if err == nil || !IsTransport(err) {
		return err
	}

	c.cfg.Logger.Warn("remote call failed, reconnecting",
		zap.String("remote", c.cfg.Name), zap.Uint64("generation", gen), zap.Error(err))

	stub, _, rerr := c.rebind(ctx, gen)
	if rerr != nil {
		return rerr
	}
	if c.cfg.OnRetry != nil {
		c.cfg.OnRetry()
	}

	err = c.attempt(ctx, stub, op)
	if err != nil && IsTransport(err) {
		return fmt.Errorf("%s: retry after reconnect failed: %w", c.cfg.Name, err)
	}
	return err
}

// attempt runs op once under its own deadline. The classifier sees the
// caller's ctx, so an expired attempt on a live caller reads as transport.
func (c *Client[S]) attempt(ctx context.Context, stub S, op func(context.Context, S) error) error {
	actx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}
	return c.cfg.Classify(ctx, op(actx, stub))
}

// Call is Do for operations that return a value.
func Call[S, T any](ctx context.Context, c *Client[S], op func(context.Context, S) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, func(ctx context.Context, s S) error {
		v, err := op(ctx, s)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Generation returns how many times a stub has been bound.
func (c *Client[S]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *Client[S]) Close() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	c.mu.Lock()
	c.bound = false
	c.mu.Unlock()
	c.handle.Invalidate()
}
