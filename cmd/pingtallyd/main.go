package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/haukened/pingtally/internal/tally/common/clock"
	"github.com/haukened/pingtally/internal/tally/common/log"
	"github.com/haukened/pingtally/internal/tally/config"
	"github.com/haukened/pingtally/internal/tally/gateways/interceptor"
	"github.com/haukened/pingtally/internal/tally/gateways/metrics"
	"github.com/haukened/pingtally/internal/tally/gateways/transport"
	"github.com/haukened/pingtally/internal/tally/repos/addrcache"
	"github.com/haukened/pingtally/internal/tally/repos/counterstore"
	"github.com/haukened/pingtally/internal/tally/repos/firstseen"
	"github.com/haukened/pingtally/internal/tally/services/reporter"
	"github.com/haukened/pingtally/internal/tally/services/shutdown"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "pingtallyd"
)

// reportOutput is where the stdout sink writes.
var reportOutput io.Writer = os.Stdout

// Application holds all the components of the ping service
type Application struct {
	config    *config.AppConfig
	logger    log.Logger
	store     *counterstore.Store
	handler   http.Handler
	transport *transport.HTTPTransport
	reporter  *reporter.Reporter
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	if _, err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevelFallback != "" {
		log.Warn(map[string]any{
			"requested": cfg.LogLevelFallback,
			"using":     cfg.LogLevel,
		}, "Unknown log level, falling back to default")
	}

	log.Info(map[string]any{
		"app":             appName,
		"version":         version,
		"env":             cfg.Env,
		"log_level":       cfg.LogLevel,
		"addr":            cfg.Addr(),
		"report_interval": cfg.ReportInterval.String(),
		"report_sink":     cfg.ReportSink,
		"metrics":         cfg.MetricsEnabled,
	}, "Starting ping tally server")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	summary, err := app.Run(context.Background(), nil)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(map[string]any{
		"failed": summary.Failed(),
	}, "Ping tally server stopped")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	clk := clock.RealClock{}

	// Build repository layer
	store := counterstore.New()

	addrs, err := addrcache.New(cfg.AddrCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}

	seen := firstseen.New(cfg.FirstSeenCapacity, cfg.FirstSeenFPRate)

	// Build gateway layer
	m := metrics.New(store)
	m.RegisterAddrCache(addrs)

	counter := interceptor.New(interceptor.Options{
		Store:     store,
		Resolver:  addrs,
		FirstSeen: seen,
		Metrics:   m,
		Logger:    logger,
	})

	routes := transport.RouterOptions{Counter: counter.Middleware}
	if cfg.MetricsEnabled {
		routes.Metrics = m.Handler()
		log.Info(map[string]any{"path": "/metrics"}, "Prometheus metrics enabled")
	}
	handler := transport.NewRouter(routes)

	httpTransport := transport.NewHTTPTransport(transport.Options{
		Addr:            cfg.Addr(),
		Handler:         handler,
		Logger:          logger,
		MaxConns:        cfg.MaxConns,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	// Build service layer
	sink, err := buildSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	reporterService := reporter.New(reporter.Options{
		Store:    store,
		Sink:     sink,
		Interval: cfg.ReportInterval,
		Clock:    clk,
		Logger:   logger,
		Metrics:  m,
	})

	return &Application{
		config:    cfg,
		logger:    logger,
		store:     store,
		handler:   handler,
		transport: httpTransport,
		reporter:  reporterService,
	}, nil
}

func buildSink(cfg *config.AppConfig, logger log.Logger) (reporter.Sink, error) {
	switch cfg.ReportSink {
	case "log":
		return reporter.LogSink{Logger: logger}, nil
	case "stdout":
		return reporter.NewWriterSink(reportOutput), nil
	default:
		return nil, fmt.Errorf("unknown report sink %q", cfg.ReportSink)
	}
}

// Run binds the listener, then serves and reports until a termination signal
// arrives or ctx is cancelled. A nil signals channel subscribes to the
// process's termination signals.
func (app *Application) Run(ctx context.Context, signals <-chan os.Signal) (shutdown.Summary, error) {
	if err := app.transport.Listen(); err != nil {
		return shutdown.Summary{}, err
	}

	log.Info(map[string]any{
		"address":         app.transport.Address(),
		"transport":       "http",
		"report_interval": app.reporter.Interval().String(),
	}, "Ping tally server started")

	coordinator := shutdown.NewCoordinator(shutdown.Options{
		Logger:  app.logger,
		Signals: signals,
	})
	return coordinator.Run(ctx, app.reporter.Run, app.transport.Serve), nil
}
