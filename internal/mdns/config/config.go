package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// envPrefix prefixes every environment variable read by Load.
const envPrefix = "MDNS_"

// configFileEnv names the variable holding an optional config file path.
const configFileEnv = envPrefix + "CONFIG_FILE"

// AppConfig is the complete rr-browse configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env       string          `koanf:"env" validate:"required,oneof=dev prod"`
	Log       LoggingConfig   `koanf:"log"`
	Browse    BrowseConfig    `koanf:"browse"`
	Query     QueryConfig     `koanf:"query"`
	Resolve   ResolveConfig   `koanf:"resolve"`
	Cache     CacheConfig     `koanf:"cache"`
	Transport TransportConfig `koanf:"transport"`
	Filter    FilterConfig    `koanf:"filter"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type BrowseConfig struct {
	// Service is the DNS-SD service type to browse, e.g. "_ipp._tcp.local".
	Service string `koanf:"service" validate:"required,service_type"`
	// Resolve queries SRV/TXT for new instances announced without them.
	Resolve bool `koanf:"resolve"`
}

// QueryConfig bounds the browse re-query backoff.
type QueryConfig struct {
	Initial time.Duration `koanf:"initial" validate:"gte=10ms"`
	Max     time.Duration `koanf:"max" validate:"gtefield=Initial"`
}

type ResolveConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gte=10ms"`
	Retries int           `koanf:"retries" validate:"gte=0,lte=10"`
}

type CacheConfig struct {
	Size  int           `koanf:"size" validate:"required,gte=1"`
	Sweep time.Duration `koanf:"sweep" validate:"gte=10ms"`
}

type TransportConfig struct {
	Family string `koanf:"family" validate:"required,oneof=ipv4 ipv6"`
	// Interface restricts multicast to one interface; empty uses all.
	Interface string        `koanf:"interface"`
	Poll      time.Duration `koanf:"poll" validate:"gte=1ms"`
}

// FilterConfig configures the instance ignore list.
type FilterConfig struct {
	// File is a plain list of instance names; empty disables filtering.
	File      string  `koanf:"file"`
	CacheSize int     `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG holds the defaults applied before file and environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Browse: BrowseConfig{
		Service: "_ipp._tcp.local",
		Resolve: true,
	},
	Query: QueryConfig{
		Initial: time.Second,
		Max:     60 * time.Second,
	},
	Resolve: ResolveConfig{
		Timeout: 3 * time.Second,
		Retries: 1,
	},
	Cache: CacheConfig{
		Size:  1024,
		Sweep: 5 * time.Second,
	},
	Transport: TransportConfig{
		Family: "ipv4",
		Poll:   250 * time.Millisecond,
	},
	Filter: FilterConfig{
		CacheSize: 256,
		FPRate:    0.01,
	},
}

// envKeys maps flattened environment names to config paths. Names not listed
// are ignored, so MDNS_FILTER_CACHE_SIZE cannot be misread as filter.cache.size.
var envKeys = map[string]string{
	"env":                 "env",
	"log_level":           "log.level",
	"browse_service":      "browse.service",
	"browse_resolve":      "browse.resolve",
	"query_initial":       "query.initial",
	"query_max":           "query.max",
	"resolve_timeout":     "resolve.timeout",
	"resolve_retries":     "resolve.retries",
	"cache_size":          "cache.size",
	"cache_sweep":         "cache.sweep",
	"transport_family":    "transport.family",
	"transport_interface": "transport.interface",
	"transport_poll":      "transport.poll",
	"filter_file":         "filter.file",
	"filter_cache_size":   "filter.cache_size",
	"filter_fp_rate":      "filter.fp_rate",
}

// validServiceType reports whether the field holds a DNS-SD service type
// such as "_printer._tcp.local".
func validServiceType(fl validator.FieldLevel) bool {
	return utils.IsServiceType(fl.Field().String())
}

// envLoader loads MDNS_-prefixed environment variables. It can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envKeys[strings.ToLower(strings.TrimPrefix(key, envPrefix))]
			if !ok {
				return "", nil
			}
			return path, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads path when it is set, choosing the parser by extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the "service_type" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("service_type", validServiceType)
}

// Load builds the configuration from defaults, then the file named by
// MDNS_CONFIG_FILE, then MDNS_ environment variables, and validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := fileLoader(k, strings.TrimSpace(os.Getenv(configFileEnv))); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	cfg.Browse.Service = utils.CanonicalDNSName(cfg.Browse.Service)
	return &cfg, nil
}
