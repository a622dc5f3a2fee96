// Package interceptor provides the HTTP middleware that attributes every
// request on a monitored route to its client address before the request
// reaches its handler.
package interceptor

import (
	"net/http"

	"github.com/haukened/pingtally/internal/tally/common/log"
	"github.com/haukened/pingtally/internal/tally/domain"
	"github.com/haukened/pingtally/internal/tally/gateways/metrics"
	"github.com/haukened/pingtally/internal/tally/repos/firstseen"
)

// Counter is the write side of the counter store.
type Counter interface {
	Increment(addr domain.ClientAddress)
}

// AddressResolver turns the transport's peer string into a client address.
type AddressResolver interface {
	Resolve(remote string) (domain.ClientAddress, error)
}

// Options configures an Interceptor. Store is required; everything else has
// a working default.
type Options struct {
	Store     Counter
	Resolver  AddressResolver
	FirstSeen firstseen.Filter
	Metrics   *metrics.Metrics
	Logger    log.Logger
}

// Interceptor counts requests per client address.
type Interceptor struct {
	store     Counter
	resolver  AddressResolver
	firstSeen firstseen.Filter
	metrics   *metrics.Metrics
	logger    log.Logger
}

// New returns an Interceptor for the given options.
func New(opts Options) *Interceptor {
	i := &Interceptor{
		store:     opts.Store,
		resolver:  opts.Resolver,
		firstSeen: opts.FirstSeen,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if i.resolver == nil {
		i.resolver = parseResolver{}
	}
	if i.firstSeen == nil {
		i.firstSeen = firstseen.NewNop()
	}
	if i.logger == nil {
		i.logger = log.NewNoopLogger()
	}
	return i
}

// Middleware wraps next so that each request increments its client's count
// exactly once before being forwarded. A missing or unparsable peer address
// is logged and skipped; the request is always forwarded.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i.observe(r)
		next.ServeHTTP(w, r)
	})
}

func (i *Interceptor) observe(r *http.Request) {
	addr, err := i.resolver.Resolve(r.RemoteAddr)
	if err != nil {
		i.logger.Debug(map[string]any{
			"remote": r.RemoteAddr,
			"path":   r.URL.Path,
			"error":  err.Error(),
		}, "Request has no usable client address, not counted")
		if i.metrics != nil {
			i.metrics.RequestsUncounted.Inc()
		}
		return
	}

	i.store.Increment(addr)
	if i.metrics != nil {
		i.metrics.RequestsCounted.Inc()
	}

	if !i.firstSeen.Observe(addr) {
		i.logger.Debug(map[string]any{
			"client": addr.String(),
		}, "First request from client")
	}
}

type parseResolver struct{}

func (parseResolver) Resolve(remote string) (domain.ClientAddress, error) {
	return domain.ParseRemoteAddr(remote)
}
