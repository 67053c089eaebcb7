package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/rangecheck"
	"github.com/sealbit/rangecheck/tdx"
)

// =====================================
// Crypto Generators
// =====================================

// GenerateRandomBytes generates a slice of random bytes with the specified length
func GenerateRandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	_, err := rand.Read(b)
	return b, err
}

// GenerateTestKeyPair creates an Ed25519 key pair for testing
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// MustKeyPair creates a key pair and fails the test on error
func MustKeyPair(t *testing.T) (crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return pubKey, privKey
}

// =====================================
// Service Stack Fixtures
// =====================================

// Stack bundles a fully wired range check service for integration tests:
// the service, the ciphertext backend it computes on, the event store and
// the principals that govern it.
type Stack struct {
	Service *rangecheck.Service
	Backend fhe.Backend
	Store   eventlog.Store
	Emitter *eventlog.Emitter

	// Client produces ciphertexts and input proofs the backend accepts.
	// With an in-process backend it is the backend itself; with a remote
	// backend it is a separate instance sharing the deployment seed, the
	// way real callers encrypt against a deployed coprocessor.
	Client *fhe.InMemoryCoprocessor

	// CoprocessorURL is the coprocessor's endpoint when the stack runs a
	// remote backend, empty otherwise. Attestation evidence served by the
	// backend is bound to this exact string.
	CoprocessorURL string

	Owner      crypto.PublicKey
	OwnerKey   crypto.PrivateKey
	ServiceKey crypto.PublicKey
}

// StackOption is a function that modifies the stack configuration
type StackOption func(*stackConfig)

type stackConfig struct {
	lower  uint32
	upper  uint32
	remote bool
	bolt   bool
}

// WithInterval sets the initial bounds (default [10, 20))
func WithInterval(lower, upper uint32) StackOption {
	return func(cfg *stackConfig) {
		cfg.lower = lower
		cfg.upper = upper
	}
}

// WithRemoteCoprocessor serves the coprocessor over HTTP and wires the
// service to it through the remote backend, mirroring a split deployment
func WithRemoteCoprocessor() StackOption {
	return func(cfg *stackConfig) {
		cfg.remote = true
	}
}

// WithBoltStore persists events in a bolt database under a test temp dir
func WithBoltStore() StackOption {
	return func(cfg *stackConfig) {
		cfg.bolt = true
	}
}

// NewTestStack creates a wired service stack with default values that can
// be customized using options. Cleanup is registered on t.
func NewTestStack(t *testing.T, options ...StackOption) *Stack {
	t.Helper()

	cfg := &stackConfig{lower: 10, upper: 20}
	for _, option := range options {
		option(cfg)
	}

	seedBytes, err := GenerateRandomBytes(16)
	require.NoError(t, err)
	seed := []byte(hex.EncodeToString(seedBytes))

	backing, err := fhe.NewDemoCoprocessor(seed)
	require.NoError(t, err)

	stack := &Stack{
		Backend: backing,
		Client:  backing,
	}

	if cfg.remote {
		served := &attestedCoprocessor{
			InMemoryCoprocessor: backing,
			provider:            &tdx.DummyProvider{},
		}
		router := chi.NewRouter()
		fhe.NewCoprocessorServer(served, nil).RegisterRoutes(router)
		server := httptest.NewServer(router)
		t.Cleanup(server.Close)
		served.endpoint = server.URL

		// Callers hold their own instance of the deployment keys, the
		// way the CLI encrypts against a deployed coprocessor.
		client, err := fhe.NewDemoCoprocessor(seed)
		require.NoError(t, err)

		stack.Backend = fhe.NewRemoteCoprocessor(server.URL)
		stack.Client = client
		stack.CoprocessorURL = server.URL
	}

	var store eventlog.Store = eventlog.NewMemoryStore()
	if cfg.bolt {
		store, err = eventlog.NewBoltStore(filepath.Join(t.TempDir(), "events.db"))
		require.NoError(t, err)
	}
	t.Cleanup(func() { store.Close() })
	stack.Store = store

	stack.Owner, stack.OwnerKey = MustKeyPair(t)
	stack.ServiceKey, _ = MustKeyPair(t)

	stack.Emitter = eventlog.NewEmitter(store, nil)
	service, err := rangecheck.NewService(&rangecheck.ServiceConfig{
		Owner:        stack.Owner,
		ServiceKey:   stack.ServiceKey,
		InitialLower: cfg.lower,
		InitialUpper: cfg.upper,
	}, stack.Backend, stack.Emitter)
	require.NoError(t, err)
	stack.Service = service

	return stack
}

// SubmitInput encrypts value and proves it for caller, returning what a
// check needs
func (s *Stack) SubmitInput(t *testing.T, value uint32, caller crypto.PublicKey) (fhe.Handle, []byte) {
	t.Helper()

	ciphertext, handle, err := s.Client.Encrypt(value)
	require.NoError(t, err)
	proof, err := s.Client.ProveInput(ciphertext, caller)
	require.NoError(t, err)
	return handle, proof
}

// attestedCoprocessor overrides Attest with provider evidence bound to the
// serving endpoint, matching what the standalone coprocessor daemon does.
type attestedCoprocessor struct {
	*fhe.InMemoryCoprocessor
	provider tdx.Provider
	endpoint string
}

func (a *attestedCoprocessor) Attest(ctx context.Context) ([]byte, error) {
	return a.provider.Attest(tdx.ReportDataForCoprocessor(a.endpoint))
}
