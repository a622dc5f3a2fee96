package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PingBody is the fixed liveness response.
const PingBody = "pong"

// RouterOptions selects what the router serves.
type RouterOptions struct {
	// Counter wraps the monitored route. Nil serves /ping uncounted.
	Counter func(http.Handler) http.Handler
	// Metrics, when set, is mounted on /metrics outside the counter.
	Metrics http.Handler
}

// NewRouter builds the HTTP routes: GET /ping behind the counter and,
// optionally, GET /metrics.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	ping := r.With()
	if opts.Counter != nil {
		ping = r.With(opts.Counter)
	}
	ping.Get("/ping", Ping)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

// Ping answers the liveness probe.
func Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(PingBody))
}
