package fhe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sealbit/rangecheck/crypto"
)

// setupCoprocessorServer serves the coprocessor wire API backed by an
// in-memory coprocessor, so the remote client can be exercised end to end
// against the production handler.
func setupCoprocessorServer(t *testing.T) (*httptest.Server, *InMemoryCoprocessor) {
	t.Helper()

	backing, err := NewInMemoryCoprocessor()
	require.NoError(t, err)

	router := chi.NewRouter()
	NewCoprocessorServer(backing, nil).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, backing
}

func TestRemoteCoprocessor_FullFlow(t *testing.T) {
	server, backing := setupCoprocessorServer(t)
	remote := NewRemoteCoprocessor(server.URL)
	ctx := context.Background()

	caller, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// Client-side encryption happens against the backing coprocessor;
	// everything else goes through the HTTP client.
	ciphertext, handle, err := backing.Encrypt(15)
	require.NoError(t, err)
	proof, err := backing.ProveInput(ciphertext, caller)
	require.NoError(t, err)

	require.NoError(t, remote.VerifyInput(ctx, handle, proof, caller))

	lower, err := remote.TrivialEncrypt(ctx, 10)
	require.NoError(t, err)
	upper, err := remote.TrivialEncrypt(ctx, 20)
	require.NoError(t, err)

	geLower, err := remote.Ge(ctx, handle, lower)
	require.NoError(t, err)
	ltUpper, err := remote.Lt(ctx, handle, upper)
	require.NoError(t, err)
	inRange, err := remote.And(ctx, geLower, ltUpper)
	require.NoError(t, err)

	require.NoError(t, remote.Allow(ctx, inRange, caller))
	allowed, err := remote.IsAllowed(ctx, inRange, caller)
	require.NoError(t, err)
	require.True(t, allowed)

	plaintext, err := remote.Decrypt(ctx, inRange, caller)
	require.NoError(t, err)
	require.True(t, plaintext.Bool())

	require.NoError(t, remote.MakePubliclyDecryptable(ctx, inRange))
	isPublic, err := remote.IsPubliclyDecryptable(ctx, inRange)
	require.NoError(t, err)
	require.True(t, isPublic)

	plaintext, err = remote.DecryptPublic(ctx, inRange)
	require.NoError(t, err)
	require.True(t, plaintext.Bool())

	attestation, err := remote.Attest(ctx)
	require.NoError(t, err)
	ok, err := backing.VerifyAttestation(attestation)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoteCoprocessor_SentinelReconstruction(t *testing.T) {
	server, backing := setupCoprocessorServer(t)
	remote := NewRemoteCoprocessor(server.URL)
	ctx := context.Background()

	caller, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	unknown := ComputeHandle([]byte("never admitted"))
	err = remote.Allow(ctx, unknown, caller)
	require.ErrorIs(t, err, ErrUnknownHandle)

	err = remote.VerifyInput(ctx, unknown, []byte("bogus proof bytes that are long enough...."), caller)
	require.ErrorIs(t, err, ErrInvalidProof)

	handle, err := remote.TrivialEncrypt(ctx, 7)
	require.NoError(t, err)
	_, err = remote.Decrypt(ctx, handle, caller)
	require.ErrorIs(t, err, ErrNotAllowed)
	_, err = remote.DecryptPublic(ctx, handle)
	require.ErrorIs(t, err, ErrNotPublic)

	boolHandle, err := backing.Lt(ctx, handle, handle)
	require.NoError(t, err)
	_, err = remote.Ge(ctx, boolHandle, handle)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestRemoteCoprocessor_PlainServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	remote := NewRemoteCoprocessor(server.URL)
	_, err := remote.TrivialEncrypt(context.Background(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}
