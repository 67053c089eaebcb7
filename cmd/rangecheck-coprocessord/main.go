// Command rangecheck-coprocessord runs a standalone ciphertext coprocessor.
//
// The daemon hosts the coprocessor API that rangecheckd's remote backend
// dials: input verification, comparisons, access grants and decryption.
// Ciphertexts admitted here are sealed under keys this process holds, so
// running it separately keeps plaintext access out of the gateway's trust
// domain.
//
// Attestation quotes served from /attestation bind the daemon's public
// endpoint. Start rangecheckd with --coprocessor-url set to the exact same
// string, or vetting will refuse the quote.
//
// # Usage
//
//	go run ./cmd/rangecheck-coprocessord --listen-addr=127.0.0.1:8091
//	go run ./cmd/rangecheck-coprocessord --demo-seed=devnet --public-endpoint=http://10.0.0.5:8091
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sealbit/rangecheck/api/httpserver"
	"github.com/sealbit/rangecheck/cmd/common"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/tdx"
)

func main() {
	var (
		listenAddr      = flag.String("listen-addr", "127.0.0.1:8091", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "127.0.0.1:8092", "Metrics listen address")
		enablePprof     = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		logJSON         = flag.Bool("log-json", false, "Log in JSON")
		logDebug        = flag.Bool("log-debug", false, "Log debug messages")
		demoSeed        = flag.String("demo-seed", "", "Deterministic instance seed (random keys if empty)")
		publicEndpoint  = flag.String("public-endpoint", "", "URL gateways dial, bound into attestation quotes (defaults to http://<listen-addr>)")
		useTDX          = flag.Bool("tdx", false, "Produce real TDX attestation quotes")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote DCAP attestation service URL")
		drainDuration   = flag.Duration("drain-duration", 5*time.Second, "Wait after /drain before refusing requests")
		shutdownTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	)
	flag.Parse()

	endpoint := *publicEndpoint
	if endpoint == "" {
		endpoint = "http://" + *listenAddr
	}

	if err := run(&daemonConfig{
		listenAddr:      *listenAddr,
		metricsAddr:     *metricsAddr,
		enablePprof:     *enablePprof,
		logJSON:         *logJSON,
		logDebug:        *logDebug,
		demoSeed:        *demoSeed,
		endpoint:        endpoint,
		useTDX:          *useTDX,
		remoteTDXURL:    *remoteTDXURL,
		drainDuration:   *drainDuration,
		shutdownTimeout: *shutdownTimeout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type daemonConfig struct {
	listenAddr      string
	metricsAddr     string
	enablePprof     bool
	logJSON         bool
	logDebug        bool
	demoSeed        string
	endpoint        string
	useTDX          bool
	remoteTDXURL    string
	drainDuration   time.Duration
	shutdownTimeout time.Duration
}

func run(cfg *daemonConfig) error {
	log := common.NewLogger(cfg.logJSON, cfg.logDebug)

	var (
		backing *fhe.InMemoryCoprocessor
		err     error
	)
	if cfg.demoSeed != "" {
		backing, err = fhe.NewDemoCoprocessor([]byte(cfg.demoSeed))
	} else {
		backing, err = fhe.NewInMemoryCoprocessor()
	}
	if err != nil {
		return fmt.Errorf("coprocessor: %w", err)
	}

	backend := &attestedBackend{
		Backend:  backing,
		provider: common.NewAttestationProvider(cfg.useTDX, cfg.remoteTDXURL),
		endpoint: cfg.endpoint,
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.listenAddr,
		MetricsAddr:              cfg.metricsAddr,
		EnablePprof:              cfg.enablePprof,
		Log:                      log,
		DrainDuration:            cfg.drainDuration,
		GracefulShutdownDuration: cfg.shutdownTimeout,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, fhe.NewCoprocessorServer(backend, log))
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("Coprocessor attestation configured", "endpoint", cfg.endpoint, "type", backend.provider.AttestationType())

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit

	log.Info("Shutting down")
	srv.Shutdown()
	return nil
}

// attestedBackend serves provider-backed attestation quotes in place of
// the embedded backend's own. The quote binds the daemon's public
// endpoint, so gateways vet evidence for the address they actually dial.
type attestedBackend struct {
	fhe.Backend
	provider tdx.Provider
	endpoint string
}

func (b *attestedBackend) Attest(ctx context.Context) ([]byte, error) {
	return b.provider.Attest(tdx.ReportDataForCoprocessor(b.endpoint))
}
