package resilient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCHandle binds a typed stub to a *grpc.ClientConn. Each Resolve dials a
// new connection, waits until it is READY and closes the previous one.
type GRPCHandle[S any] struct {
	target         string
	newStub        func(grpc.ClientConnInterface) S
	connectTimeout time.Duration
	opts           []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func NewGRPCHandle[S any](target string, newStub func(grpc.ClientConnInterface) S, connectTimeout time.Duration, opts ...grpc.DialOption) *GRPCHandle[S] {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &GRPCHandle[S]{target: target, newStub: newStub, connectTimeout: connectTimeout, opts: opts}
}

func (h *GRPCHandle[S]) Resolve(ctx context.Context) (S, error) {
	var zero S
	conn, err := grpc.NewClient(h.target, h.opts...)
	if err != nil {
		return zero, fmt.Errorf("grpc client %s: %w", h.target, err)
	}

	cctx, cancel := context.WithTimeout(ctx, h.connectTimeout)
	defer cancel()
	conn.Connect()
	for {
		st := conn.GetState()
		if st == connectivity.Ready {
			break
		}
		if !conn.WaitForStateChange(cctx, st) {
			_ = conn.Close()
			return zero, fmt.Errorf("dial %s: last state %s: %w", h.target, st, cctx.Err())
		}
	}

	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return h.newStub(conn), nil
}

func (h *GRPCHandle[S]) Invalidate() {
	h.mu.Lock()
	old := h.conn
	h.conn = nil
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// State reports the connectivity state of the bound connection.
func (h *GRPCHandle[S]) State() connectivity.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return connectivity.Shutdown
	}
	return h.conn.GetState()
}

// GRPCClassifier treats UNAVAILABLE as a transport error, and so are
// CANCELED from a closing connection and DEADLINE_EXCEEDED from a hung one,
// as long as the caller's context is still live.
func GRPCClassifier(ctx context.Context, err error) error {
	if err == nil || IsTransport(err) || IsApplication(err) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return &ApplicationError{Err: err}
	}
	switch st.Code() {
	case codes.Unavailable:
		return &TransportError{Op: "rpc", Err: err}
	case codes.Canceled, codes.DeadlineExceeded:
		if ctx.Err() == nil {
			return &TransportError{Op: "rpc", Err: err}
		}
	}
	return &ApplicationError{Err: err}
}
