package transport

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLogger implements log.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Error(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Debug(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Warn(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Panic(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Fatal(fields map[string]any, msg string) { m.Called(fields, msg) }

// testLogger provides a no-op logger for tests that don't need to verify logging
type testLogger struct{}

func (t *testLogger) Info(map[string]any, string)  {}
func (t *testLogger) Error(map[string]any, string) {}
func (t *testLogger) Debug(map[string]any, string) {}
func (t *testLogger) Warn(map[string]any, string)  {}
func (t *testLogger) Panic(map[string]any, string) {}
func (t *testLogger) Fatal(map[string]any, string) {}

func newTestTransport(t *testing.T, h http.Handler, timeout time.Duration) *HTTPTransport {
	t.Helper()
	tr := NewHTTPTransport(Options{
		Addr:            "127.0.0.1:0",
		Handler:         h,
		Logger:          &testLogger{},
		ShutdownTimeout: timeout,
	})
	require.NoError(t, tr.Listen())
	return tr
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewHTTPTransport_Defaults(t *testing.T) {
	tr := NewHTTPTransport(Options{Addr: "127.0.0.1:8081"})
	assert.Equal(t, DefaultShutdownTimeout, tr.shutdownTimeout)
	assert.NotNil(t, tr.logger)
	assert.Equal(t, "127.0.0.1:8081", tr.Address())
}

func TestHTTPTransport_ListenErrors(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		errMsg string
	}{
		{name: "invalid address format", addr: "invalid-address", errMsg: "failed to bind TCP socket"},
		{name: "port out of range", addr: "127.0.0.1:70000", errMsg: "failed to bind TCP socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHTTPTransport(Options{Addr: tt.addr, Logger: &testLogger{}})
			err := tr.Listen()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestHTTPTransport_ListenOccupiedPort(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = occupied.Close() }()

	tr := NewHTTPTransport(Options{Addr: occupied.Addr().String(), Logger: &testLogger{}})
	err = tr.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind TCP socket")
}

func TestHTTPTransport_DoubleListen(t *testing.T) {
	tr := newTestTransport(t, http.NotFoundHandler(), time.Second)
	assert.ErrorIs(t, tr.Listen(), ErrAlreadyListening)

	shutdown := make(chan struct{})
	close(shutdown)
	assert.NoError(t, tr.Serve(shutdown))
}

func TestHTTPTransport_ServeBeforeListen(t *testing.T) {
	tr := NewHTTPTransport(Options{Addr: "127.0.0.1:0"})
	assert.ErrorIs(t, tr.Serve(make(chan struct{})), ErrNotListening)
}

func TestHTTPTransport_ServeUntilShutdown(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Info", mock.Anything, "HTTP transport listening").Once()
	logger.On("Info", mock.Anything, "Shutting down HTTP transport").Once()
	logger.On("Info", mock.Anything, "HTTP transport stopped").Once()

	tr := NewHTTPTransport(Options{
		Addr:    "127.0.0.1:0",
		Handler: NewRouter(RouterOptions{}),
		Logger:  logger,
	})
	require.NoError(t, tr.Listen())
	assert.NotEqual(t, "127.0.0.1:0", tr.Address(), "Address should report the resolved port")

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tr.Serve(shutdown) }()

	code, body := get(t, "http://"+tr.Address()+"/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, PingBody, body)

	close(shutdown)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}

	_, err := http.Get("http://" + tr.Address() + "/ping")
	assert.Error(t, err, "listener should be closed after shutdown")
	logger.AssertExpectations(t)
}

func TestHTTPTransport_DrainsInFlightRequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte("finished"))
	})
	tr := newTestTransport(t, h, 5*time.Second)

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tr.Serve(shutdown) }()

	type result struct {
		body string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + tr.Address() + "/")
		if err != nil {
			resCh <- result{err: err}
			return
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		resCh <- result{body: string(b), err: err}
	}()

	<-entered
	close(shutdown)

	select {
	case <-done:
		t.Fatal("Serve returned while a request was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, "finished", res.body)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the in-flight request completed")
	}
}

func TestHTTPTransport_DrainTimeout(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	tr := newTestTransport(t, h, 50*time.Millisecond)

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tr.Serve(shutdown) }()

	go func() {
		resp, err := http.Get("http://" + tr.Address() + "/")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-entered
	close(shutdown)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP drain")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not give up after the drain timeout")
	}
}

func TestHTTPTransport_MaxConns(t *testing.T) {
	tr := NewHTTPTransport(Options{
		Addr:     "127.0.0.1:0",
		Handler:  NewRouter(RouterOptions{}),
		Logger:   &testLogger{},
		MaxConns: 1,
	})
	require.NoError(t, tr.Listen())

	shutdown := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- tr.Serve(shutdown) }()

	code, body := get(t, "http://"+tr.Address()+"/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, PingBody, body)

	close(shutdown)
	assert.NoError(t, <-done)
}

func TestRouter_Ping(t *testing.T) {
	counted := 0
	counter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counted++
			next.ServeHTTP(w, r)
		})
	}
	r := NewRouter(RouterOptions{Counter: counter})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, counted)
}

func TestRouter_OnlyPingIsCounted(t *testing.T) {
	counted := 0
	counter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counted++
			next.ServeHTTP(w, r)
		})
	}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	r := NewRouter(RouterOptions{Counter: counter, Metrics: metricsHandler})

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, "/ping", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, "%s %s", tt.method, tt.path)
	}
	assert.Equal(t, 0, counted)
}

func TestRouter_MetricsAbsentByDefault(t *testing.T) {
	r := NewRouter(RouterOptions{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RecoversPanics(t *testing.T) {
	counter := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})
	}
	r := NewRouter(RouterOptions{Counter: counter})
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
