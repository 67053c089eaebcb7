// Command rangecheckd runs the confidential range check gateway.
//
// The daemon hosts the bounds governance and range check service and
// exposes it over HTTP. Values stay encrypted end to end: callers submit
// ciphertext handles with input proofs, comparisons run on a ciphertext
// backend, and verdicts come back as handles that only authorized
// principals can decrypt.
//
// # Configuration File
//
// Create a YAML file with daemon settings:
//
//	listen_addr: "127.0.0.1:8080"
//	metrics_addr: "127.0.0.1:8090"
//	owner_pubkey: ""      # hex, generates a key pair if empty
//	service_pubkey: ""    # hex, generates a key pair if empty
//	bounds:
//	  lower: 18
//	  upper: 120
//	backend:
//	  kind: "mock"        # mock or remote
//	  coprocessor_url: ""
//	store:
//	  kind: "memory"      # memory, bolt or postgres
//	attestation:
//	  use_tdx: false
//	  measurements_url: ""
//
// # Endpoints
//
// Public (signed where mutating):
//   - POST /api/check - Range check against the governed interval
//   - POST /api/check-with-bounds - Range check against caller bounds
//   - GET /api/bounds - Current interval and owner
//   - GET /api/last-result - Handle in the shared result slot
//   - POST /api/last-result/publish - Make the slot publicly decryptable
//   - POST /api/decrypt - Private decryption to an ephemeral key
//   - POST /api/decrypt/public - Decryption of published results
//   - GET /api/events - Append-only event feed
//   - GET /api/version - Service version
//
// Governance (owner-signed):
//   - POST /admin/bounds - Replace the interval
//   - POST /admin/transfer-ownership - Hand governance to a new owner
//
// # Usage
//
//	go run ./cmd/rangecheckd --config=rangecheckd.yaml
//	go run ./cmd/rangecheckd --listen-addr=:8080 --lower=18 --upper=120
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sealbit/rangecheck/api/httpserver"
	"github.com/sealbit/rangecheck/cmd/common"
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/gateway"
	"github.com/sealbit/rangecheck/rangecheck"
)

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		listenAddr      = flag.String("listen-addr", "", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "", "Metrics listen address")
		enablePprof     = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		logJSON         = flag.Bool("log-json", false, "Log in JSON")
		logDebug        = flag.Bool("log-debug", false, "Log debug messages")
		ownerHex        = flag.String("owner", "", "Owner public key (hex, generates a key pair if empty)")
		serviceHex      = flag.String("service-pubkey", "", "Service public key granted on results (hex, generates if empty)")
		lower           = flag.Uint("lower", 0, "Initial lower bound (inclusive)")
		upper           = flag.Uint("upper", 0, "Initial upper bound (exclusive)")
		backendKind     = flag.String("backend", "", "Ciphertext backend: mock or remote")
		coprocessorURL  = flag.String("coprocessor-url", "", "Coprocessor URL for the remote backend")
		demoSeed        = flag.String("demo-seed", "", "Deterministic seed for the mock backend")
		storeKind       = flag.String("store", "", "Event store: memory, bolt or postgres")
		boltPath        = flag.String("bolt-path", "", "Bolt database path")
		postgresDSN     = flag.String("postgres-dsn", "", "Postgres connection string")
		useTDX          = flag.Bool("tdx", false, "Verify the coprocessor with real TDX attestation")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote DCAP verification service URL")
		measurementsURL = flag.String("measurements-url", "", "URL for allowed measurements")
		skipVetting     = flag.Bool("skip-vetting", false, "Skip coprocessor attestation vetting (insecure)")
		allowedOrigins  = flag.String("allowed-origins", "", "Comma-separated CORS origins for /api")
		freshness       = flag.Duration("freshness-window", 0, "Signed request freshness window")
		drainDuration   = flag.Duration("drain-duration", 0, "Wait after /drain before refusing requests")
		shutdownTimeout = flag.Duration("shutdown-timeout", 0, "Graceful shutdown timeout")
	)
	flag.Parse()

	// isFlagSet checks if a flag was explicitly provided on command line
	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if isFlagSet("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.Pprof = true
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *logDebug {
		cfg.LogDebug = true
	}
	if *ownerHex != "" {
		cfg.OwnerPubkey = *ownerHex
	}
	if *serviceHex != "" {
		cfg.ServicePubkey = *serviceHex
	}
	if isFlagSet("lower") {
		cfg.Bounds.Lower = uint32(*lower)
	}
	if isFlagSet("upper") {
		cfg.Bounds.Upper = uint32(*upper)
	}
	if *backendKind != "" {
		cfg.Backend.Kind = *backendKind
	}
	if *coprocessorURL != "" {
		cfg.Backend.CoprocessorURL = *coprocessorURL
	}
	if *demoSeed != "" {
		cfg.Backend.DemoSeed = *demoSeed
	}
	if *storeKind != "" {
		cfg.Store.Kind = *storeKind
	}
	if *boltPath != "" {
		cfg.Store.BoltPath = *boltPath
	}
	if *postgresDSN != "" {
		cfg.Store.PostgresDSN = *postgresDSN
	}
	if *useTDX {
		cfg.Attestation.UseTDX = true
	}
	if *remoteTDXURL != "" {
		cfg.Attestation.TDXRemoteURL = *remoteTDXURL
	}
	if *measurementsURL != "" {
		cfg.Attestation.MeasurementsURL = *measurementsURL
	}
	if *skipVetting {
		cfg.Attestation.SkipVetting = true
	}
	if *allowedOrigins != "" {
		cfg.AllowedOrigins = strings.Split(*allowedOrigins, ",")
	}
	if *freshness != 0 {
		cfg.FreshnessWindow = *freshness
	}
	if *drainDuration != 0 {
		cfg.DrainDuration = *drainDuration
	}
	if *shutdownTimeout != 0 {
		cfg.ShutdownDuration = *shutdownTimeout
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	log := common.NewLogger(cfg.LogJSON, cfg.LogDebug)

	owner, err := resolvePrincipal(log, "owner", cfg.OwnerPubkey)
	if err != nil {
		return fmt.Errorf("owner key: %w", err)
	}
	serviceKey, err := resolvePrincipal(log, "service", cfg.ServicePubkey)
	if err != nil {
		return fmt.Errorf("service key: %w", err)
	}

	backend, err := common.NewBackend(cfg.Backend.Kind, cfg.Backend.CoprocessorURL, cfg.Backend.DemoSeed)
	if err != nil {
		return fmt.Errorf("ciphertext backend: %w", err)
	}

	store, err := common.NewEventStore(cfg.Store.Kind, cfg.Store.BoltPath, cfg.Store.PostgresDSN)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer store.Close()

	emitter := eventlog.NewEmitter(store, log)

	service, err := rangecheck.NewService(&rangecheck.ServiceConfig{
		Log:          log,
		Owner:        owner,
		ServiceKey:   serviceKey,
		InitialLower: cfg.Bounds.Lower,
		InitialUpper: cfg.Bounds.Upper,
	}, backend, emitter)
	if err != nil {
		return fmt.Errorf("range check service: %w", err)
	}

	gw := gateway.New(&gateway.Config{
		Log:             log,
		AllowedOrigins:  cfg.AllowedOrigins,
		FreshnessWindow: cfg.FreshnessWindow,
	}, service, backend, store)

	// An out-of-process coprocessor is vetted before the gateway starts
	// serving. The in-process backend shares our own trust domain.
	if cfg.Backend.Kind == "remote" && !cfg.Attestation.SkipVetting {
		vetter := common.NewVetter(cfg.Attestation.UseTDX, cfg.Attestation.TDXRemoteURL, cfg.Attestation.MeasurementsURL)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := gw.VetCoprocessor(ctx, vetter, cfg.Backend.CoprocessorURL)
		cancel()
		if err != nil {
			return fmt.Errorf("vetting coprocessor: %w", err)
		}
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.Pprof,
		Log:                      log,
		DrainDuration:            cfg.DrainDuration,
		GracefulShutdownDuration: cfg.ShutdownDuration,
		ReadTimeout:              cfg.ReadTimeout,
		WriteTimeout:             cfg.WriteTimeout,
	}, gw)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	events, unsubscribe := emitter.Subscribe(64)
	defer unsubscribe()
	go logEvents(log, events)

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit

	log.Info("Shutting down")
	srv.Shutdown()
	return nil
}

// resolvePrincipal parses a hex public key, or generates a fresh key pair
// when hexKey is empty. The private key is logged so demo operators can
// sign requests as the generated principal; production deployments should
// configure explicit keys.
func resolvePrincipal(log *slog.Logger, role, hexKey string) (crypto.PublicKey, error) {
	if hexKey != "" {
		return crypto.NewPublicKeyFromString(hexKey)
	}

	pubKey, privKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	log.Info("Generated key pair",
		"role", role,
		"pubkey", pubKey.String(),
		"privkey", hex.EncodeToString(privKey),
	)
	return pubKey, nil
}

func logEvents(log *slog.Logger, events <-chan *eventlog.Event) {
	for event := range events {
		log.Info("Service event",
			"seq", event.Seq,
			"kind", string(event.Kind),
		)
	}
}
