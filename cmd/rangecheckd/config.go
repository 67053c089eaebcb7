package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config holds the daemon settings. Addresses, keys, bounds and backend
// selection load from YAML; durations are flag-only and start from the
// defaults below.
type config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	Pprof       bool   `yaml:"pprof"`
	LogJSON     bool   `yaml:"log_json"`
	LogDebug    bool   `yaml:"log_debug"`

	// OwnerPubkey governs the interval; ServicePubkey is granted access
	// to every verdict. Hex-encoded; fresh key pairs are generated (and
	// logged) when empty.
	OwnerPubkey   string `yaml:"owner_pubkey"`
	ServicePubkey string `yaml:"service_pubkey"`

	Bounds struct {
		Lower uint32 `yaml:"lower"`
		Upper uint32 `yaml:"upper"`
	} `yaml:"bounds"`

	Backend struct {
		Kind           string `yaml:"kind"` // mock or remote
		CoprocessorURL string `yaml:"coprocessor_url"`
		DemoSeed       string `yaml:"demo_seed"`
	} `yaml:"backend"`

	Store struct {
		Kind        string `yaml:"kind"` // memory, bolt or postgres
		BoltPath    string `yaml:"bolt_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"store"`

	Attestation struct {
		UseTDX          bool   `yaml:"use_tdx"`
		TDXRemoteURL    string `yaml:"tdx_remote_url"`
		MeasurementsURL string `yaml:"measurements_url"`
		SkipVetting     bool   `yaml:"skip_vetting"`
	} `yaml:"attestation"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	FreshnessWindow  time.Duration `yaml:"-"`
	DrainDuration    time.Duration `yaml:"-"`
	ShutdownDuration time.Duration `yaml:"-"`
	ReadTimeout      time.Duration `yaml:"-"`
	WriteTimeout     time.Duration `yaml:"-"`
}

func defaultConfig() *config {
	cfg := &config{
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:8090",

		FreshnessWindow:  2 * time.Minute,
		DrainDuration:    5 * time.Second,
		ShutdownDuration: 30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     30 * time.Second,
	}
	cfg.Bounds.Lower = 0
	cfg.Bounds.Upper = 100
	cfg.Backend.Kind = "mock"
	// Pairs with rangecheck-cli's default seed so a freshly started
	// daemon accepts the CLI's input proofs. Remote deployments ignore
	// this; set demo_seed: "" for random instance keys.
	cfg.Backend.DemoSeed = "rangecheck-demo"
	cfg.Store.Kind = "memory"
	return cfg
}

// loadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
