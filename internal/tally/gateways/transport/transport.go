// Package transport provides the HTTP transport for pingtally. It owns the
// listening socket, the router and the graceful drain that runs when the
// one-shot shutdown signal fires.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/haukened/pingtally/internal/tally/common/log"
)

var (
	ErrAlreadyListening = errors.New("HTTP transport already listening")
	ErrNotListening     = errors.New("HTTP transport not listening")
)

// DefaultShutdownTimeout bounds the drain when Options.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures an HTTPTransport.
type Options struct {
	Addr            string
	Handler         http.Handler
	Logger          log.Logger
	MaxConns        int
	ShutdownTimeout time.Duration
}

// HTTPTransport serves HTTP on a single listener until told to shut down.
type HTTPTransport struct {
	addr            string
	handler         http.Handler
	logger          log.Logger
	maxConns        int
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	serving  bool
}

// NewHTTPTransport creates a new HTTP transport instance.
func NewHTTPTransport(opts Options) *HTTPTransport {
	t := &HTTPTransport{
		addr:            opts.Addr,
		handler:         opts.Handler,
		logger:          opts.Logger,
		maxConns:        opts.MaxConns,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if t.logger == nil {
		t.logger = log.NewNoopLogger()
	}
	if t.shutdownTimeout <= 0 {
		t.shutdownTimeout = DefaultShutdownTimeout
	}
	return t
}

// Listen binds the configured address. A bind failure means the service has
// nothing to offer, so callers treat it as fatal.
func (t *HTTPTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return ErrAlreadyListening
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to bind TCP socket on %s: %w", t.addr, err)
	}
	if t.maxConns > 0 {
		ln = netutil.LimitListener(ln, t.maxConns)
	}

	t.listener = ln
	t.server = &http.Server{
		Handler:           t.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   ln.Addr().String(),
		"max_conns": t.maxConns,
	}, "HTTP transport listening")
	return nil
}

// Serve handles requests until shutdown is closed, then stops accepting new
// connections and waits for in-flight requests, bounded by the shutdown
// timeout. If the drain times out the remaining connections are closed and
// the timeout is returned. A serve loop failure before shutdown is returned
// as is.
func (t *HTTPTransport) Serve(shutdown <-chan struct{}) error {
	t.mu.Lock()
	if t.listener == nil {
		t.mu.Unlock()
		return ErrNotListening
	}
	if t.serving {
		t.mu.Unlock()
		return fmt.Errorf("HTTP transport already serving")
	}
	t.serving = true
	srv, ln := t.server, t.listener
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP serve loop failed: %w", err)
	case <-shutdown:
	}

	t.logger.Info(map[string]any{
		"transport": "http",
		"timeout":   t.shutdownTimeout.String(),
	}, "Shutting down HTTP transport")

	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	drainErr := srv.Shutdown(ctx)
	if drainErr != nil {
		t.logger.Warn(map[string]any{
			"error": drainErr.Error(),
		}, "HTTP drain incomplete, closing remaining connections")
		_ = srv.Close()
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP serve loop failed: %w", err)
	}
	if drainErr != nil {
		return fmt.Errorf("HTTP drain: %w", drainErr)
	}

	t.logger.Info(map[string]any{"transport": "http"}, "HTTP transport stopped")
	return nil
}

// Address returns the bound address once listening, otherwise the configured one.
func (t *HTTPTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}
