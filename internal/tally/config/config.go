package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

// AppConfig holds configuration values parsed from the environment.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// Host is the bind address of the HTTP listener.
	Host string `koanf:"host" validate:"required,listen_host"`

	// Port is the TCP port the HTTP listener binds to.
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	// Unknown values fall back to "info" during Load.
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ReportInterval is the cadence of the ranked client report.
	ReportInterval time.Duration `koanf:"report_interval" validate:"required,gt=0"`

	// ReportSink selects where reports go: the logger or stdout.
	ReportSink string `koanf:"report_sink" validate:"required,oneof=log stdout"`

	// ShutdownTimeout bounds the HTTP drain after a termination signal.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,gt=0"`

	// MaxConns caps concurrent connections; 0 means unlimited.
	MaxConns int `koanf:"max_conns" validate:"gte=0"`

	// AddrCacheSize is the capacity of the peer address parse cache; 0 disables it.
	AddrCacheSize int `koanf:"addr_cache_size" validate:"gte=0"`

	FirstSeenCapacity uint64  `koanf:"first_seen_capacity" validate:"gte=1"`
	FirstSeenFPRate   float64 `koanf:"first_seen_fp_rate" validate:"gt=0,lt=1"`

	// MetricsEnabled mounts the Prometheus handler on /metrics.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// LogLevelFallback records the rejected LOG_LEVEL when Load fell back to
	// the default. Empty when the configured level was accepted.
	LogLevelFallback string `koanf:"-"`
}

// Addr returns the host:port listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:               "prod",
	Host:              "0.0.0.0",
	Port:              8081,
	LogLevel:          "info",
	ReportInterval:    time.Second,
	ReportSink:        "log",
	ShutdownTimeout:   10 * time.Second,
	MaxConns:          0,
	AddrCacheSize:     1024,
	FirstSeenCapacity: 100000,
	FirstSeenFPRate:   0.01,
	MetricsEnabled:    false,
}

// envKeys is the set of environment variables Load reads. Everything else in
// the environment is ignored.
var envKeys = map[string]struct{}{
	"ENV":                 {},
	"HOST":                {},
	"PORT":                {},
	"LOG_LEVEL":           {},
	"REPORT_INTERVAL":     {},
	"REPORT_SINK":         {},
	"SHUTDOWN_TIMEOUT":    {},
	"MAX_CONNS":           {},
	"ADDR_CACHE_SIZE":     {},
	"FIRST_SEEN_CAPACITY": {},
	"FIRST_SEEN_FP_RATE":  {},
	"METRICS_ENABLED":     {},
}

// ConfigFileEnv names the variable holding an optional YAML config file path.
const ConfigFileEnv = "CONFIG_FILE"

// dotenvLoader populates the process environment from a .env file in the
// working directory, if one exists. Variables already set are kept.
var dotenvLoader = func() error {
	err := godotenv.Load()
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader layers the YAML file named by CONFIG_FILE, when set.
var fileLoader = func(k *koanf.Koanf) error {
	path := strings.TrimSpace(os.Getenv(ConfigFileEnv))
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("%s=%s: %w", ConfigFileEnv, path, err)
	}
	return nil
}

// envLoader loads the whitelisted, unprefixed environment variables and
// lower-cases their names to match the koanf tags. Empty values count as unset.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if _, ok := envKeys[key]; !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return "", nil
			}
			return strings.ToLower(key), value
		},
	}), nil)
}

// validListenHost accepts an IP address or an RFC 1123 hostname.
func validListenHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// registerValidation registers the custom "listen_host" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("listen_host", validListenHost)
}

// normalizeLogLevel maps a user-supplied level onto one of debug, info, warn
// or error. "trace" maps to debug. The second return is false when the input
// could not be understood and the default was used instead.
func normalizeLogLevel(level string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "trace" {
		return "debug", true
	}
	lvl, err := zapcore.ParseLevel(l)
	if err != nil {
		return DEFAULT_APP_CONFIG.LogLevel, false
	}
	switch {
	case lvl <= zapcore.DebugLevel:
		return "debug", true
	case lvl == zapcore.InfoLevel:
		return "info", true
	case lvl == zapcore.WarnLevel:
		return "warn", true
	default:
		return "error", true
	}
}

// Load reads defaults, the optional config file and the environment into an
// AppConfig, then validates it.
func Load() (*AppConfig, error) {
	if err := dotenvLoader(); err != nil {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if level, ok := normalizeLogLevel(cfg.LogLevel); ok {
		cfg.LogLevel = level
	} else {
		cfg.LogLevelFallback = cfg.LogLevel
		cfg.LogLevel = level
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
