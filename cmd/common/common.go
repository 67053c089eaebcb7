// Package common provides shared utilities for rangecheck command binaries.
//
// This package contains helper functions used across the standalone
// binaries (rangecheckd, rangecheck-coprocessord, rangecheck-cli) to
// reduce code duplication:
//
//   - Key loading and generation for Ed25519 signing and ECDH response keys
//   - Ciphertext backend and event store factory functions
//   - Attestation provider and measurement source factory functions
package common

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/tdx"
)

// NewLogger builds the daemon logger: text or JSON on stderr, info or
// debug level.
func NewLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadOrGenerateResponseKey loads an ECDH P-256 private key from a hex
// string, or generates a new key if hexKey is empty. Privately decrypted
// results come back encrypted to this key.
func LoadOrGenerateResponseKey(hexKey string) (*ecdh.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return ecdh.P256().NewPrivateKey(keyBytes)
	}
	return ecdh.P256().GenerateKey(rand.Reader)
}

// NewBackend constructs the ciphertext backend named by kind.
//
// "mock" runs an in-process coprocessor, keyed from demoSeed when one is
// given so separately started processes agree on handles and proofs.
// "remote" talks to a coprocessor daemon at coprocessorURL.
func NewBackend(kind, coprocessorURL, demoSeed string) (fhe.Backend, error) {
	switch kind {
	case "mock":
		if demoSeed != "" {
			return fhe.NewDemoCoprocessor([]byte(demoSeed))
		}
		return fhe.NewInMemoryCoprocessor()
	case "remote":
		if coprocessorURL == "" {
			return nil, fmt.Errorf("remote backend requires a coprocessor URL")
		}
		return fhe.NewRemoteCoprocessor(coprocessorURL), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want mock or remote)", kind)
	}
}

// NewEventStore constructs the event store named by kind: "memory",
// "bolt" (requires boltPath) or "postgres" (requires postgresDSN).
func NewEventStore(kind, boltPath, postgresDSN string) (eventlog.Store, error) {
	switch kind {
	case "memory":
		return eventlog.NewMemoryStore(), nil
	case "bolt":
		if boltPath == "" {
			return nil, fmt.Errorf("bolt store requires a database path")
		}
		return eventlog.NewBoltStore(boltPath)
	case "postgres":
		if postgresDSN == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return eventlog.NewPostgresStore(postgresDSN)
	default:
		return nil, fmt.Errorf("unknown event store %q (want memory, bolt or postgres)", kind)
	}
}

// NewAttestationProvider creates an attestation provider based on
// configuration flags. Returns TDXProvider or RemoteDCAPProvider when
// useTDX is true, otherwise returns DummyProvider for testing.
func NewAttestationProvider(useTDX bool, remoteTDXURL string) tdx.Provider {
	if useTDX {
		if remoteTDXURL != "" {
			return &tdx.RemoteDCAPProvider{URL: remoteTDXURL, Timeout: 30 * time.Second}
		}
		return &tdx.TDXProvider{}
	}
	return &tdx.DummyProvider{}
}

// NewMeasurementSource creates a measurement source. With an empty URL,
// demo deployments fall back to the fixed demo measurements; TDX
// deployments get nil, meaning quotes are verified but not compared
// against an allowed set.
func NewMeasurementSource(measurementsURL string, useTDX bool) tdx.MeasurementSource {
	if measurementsURL != "" {
		return tdx.NewRemoteMeasurementSource(measurementsURL)
	}
	if !useTDX {
		return tdx.DemoMeasurementSource()
	}
	return nil
}

// NewVetter assembles attestation vetting from configuration flags.
func NewVetter(useTDX bool, remoteTDXURL, measurementsURL string) *tdx.Vetter {
	return &tdx.Vetter{
		Provider: NewAttestationProvider(useTDX, remoteTDXURL),
		Source:   NewMeasurementSource(measurementsURL, useTDX),
	}
}
