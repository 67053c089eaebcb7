package gateway

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sealbit/rangecheck/common"
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/rangecheck"
)

type gatewayFixture struct {
	server  *httptest.Server
	backend *fhe.InMemoryCoprocessor
	service *rangecheck.Service

	owner      crypto.PublicKey
	ownerKey   crypto.PrivateKey
	caller     crypto.PublicKey
	callerKey  crypto.PrivateKey
	serviceKey crypto.PublicKey
}

func setupGateway(t *testing.T, lower, upper uint32) *gatewayFixture {
	t.Helper()

	backend, err := fhe.NewInMemoryCoprocessor()
	require.NoError(t, err)

	owner, ownerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	caller, callerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	serviceKey, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	store := eventlog.NewMemoryStore()
	service, err := rangecheck.NewService(&rangecheck.ServiceConfig{
		Owner:        owner,
		ServiceKey:   serviceKey,
		InitialLower: lower,
		InitialUpper: upper,
	}, backend, eventlog.NewEmitter(store, nil))
	require.NoError(t, err)

	router := chi.NewRouter()
	New(&Config{}, service, backend, store).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{
		server:     server,
		backend:    backend,
		service:    service,
		owner:      owner,
		ownerKey:   ownerKey,
		caller:     caller,
		callerKey:  callerKey,
		serviceKey: serviceKey,
	}
}

// postSigned wraps obj in a signature envelope and POSTs it.
func postSigned[T any](t *testing.T, f *gatewayFixture, path string, key crypto.PrivateKey, obj *T) *http.Response {
	t.Helper()

	signed, err := crypto.NewSigned(key, obj)
	require.NoError(t, err)
	body, err := json.Marshal(signed)
	require.NoError(t, err)

	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, f *gatewayFixture, path string, obj interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(obj)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, f *gatewayFixture, path string, out interface{}) {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func decodeBody[T any](t *testing.T, resp *http.Response) *T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func requireErrorKind(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()

	require.Equal(t, status, resp.StatusCode)
	errResp := decodeBody[ErrorResponse](t, resp)
	require.Equal(t, kind, errResp.Kind)
}

// submitCheck runs the client-side flow and POSTs a check for the given
// value, returning the HTTP response.
func submitCheck(t *testing.T, f *gatewayFixture, value uint32) *http.Response {
	t.Helper()

	ciphertext, handle, err := f.backend.Encrypt(value)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, f.caller)
	require.NoError(t, err)

	return postSigned(t, f, "/api/check", f.callerKey, &CheckRequest{
		Handle:    handle,
		Proof:     proof,
		Timestamp: time.Now().Unix(),
	})
}

func TestGateway_CheckAndPrivateDecrypt(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := submitCheck(t, f, 15)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decodeBody[CheckResponse](t, resp)
	require.False(t, check.ResultHandle.IsZero())

	// The slot now holds the verdict
	var last LastResultResponse
	getJSON(t, f, "/api/last-result", &last)
	require.Equal(t, check.ResultHandle.String(), last.ResultHandle)

	// Private decryption: the verdict comes back encrypted to an
	// ephemeral key only this requester holds.
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	resp = postSigned(t, f, "/api/decrypt", f.callerKey, &DecryptRequest{
		Handle:      check.ResultHandle,
		ResponseKey: ephemeral.PublicKey().Bytes(),
		Timestamp:   time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decResp := decodeBody[DecryptResponse](t, resp)

	msg, err := crypto.ParseEncryptedMessage(decResp.EncryptedResult)
	require.NoError(t, err)
	plainBody, err := crypto.Decrypt(ephemeral, msg)
	require.NoError(t, err)

	var plaintext fhe.Plaintext
	require.NoError(t, json.Unmarshal(plainBody, &plaintext))
	require.Equal(t, fhe.TypeBool, plaintext.Type)
	require.True(t, plaintext.Bool())
}

func TestGateway_CheckOutOfRange(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := submitCheck(t, f, 20)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decodeBody[CheckResponse](t, resp)

	plaintext, err := f.backend.Decrypt(context.Background(), check.ResultHandle, f.caller)
	require.NoError(t, err)
	require.False(t, plaintext.Bool())
}

func TestGateway_CheckRejectsTamperedEnvelope(t *testing.T) {
	f := setupGateway(t, 10, 20)

	ciphertext, handle, err := f.backend.Encrypt(15)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, f.caller)
	require.NoError(t, err)

	signed, err := crypto.NewSigned(f.callerKey, &CheckRequest{
		Handle:    handle,
		Proof:     proof,
		Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)
	// Mutating the object after signing invalidates the envelope
	signed.Object.Timestamp = time.Now().Unix() + 1

	body, err := json.Marshal(signed)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+"/api/check", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)
}

func TestGateway_CheckRejectsStaleTimestamp(t *testing.T) {
	f := setupGateway(t, 10, 20)

	ciphertext, handle, err := f.backend.Encrypt(15)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, f.caller)
	require.NoError(t, err)

	resp := postSigned(t, f, "/api/check", f.callerKey, &CheckRequest{
		Handle:    handle,
		Proof:     proof,
		Timestamp: time.Now().Add(-10 * time.Minute).Unix(),
	})
	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)
}

func TestGateway_CheckRejectsForeignProof(t *testing.T) {
	f := setupGateway(t, 10, 20)
	_, imposterKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// Proof bound to the caller, request signed by someone else
	ciphertext, handle, err := f.backend.Encrypt(15)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, f.caller)
	require.NoError(t, err)

	resp := postSigned(t, f, "/api/check", imposterKey, &CheckRequest{
		Handle:    handle,
		Proof:     proof,
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusUnprocessableEntity, KindVerification)
}

func TestGateway_CheckRejectsEmptyProof(t *testing.T) {
	f := setupGateway(t, 10, 20)

	_, handle, err := f.backend.Encrypt(15)
	require.NoError(t, err)

	resp := postSigned(t, f, "/api/check", f.callerKey, &CheckRequest{
		Handle:    handle,
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusBadRequest, KindValidation)
}

func TestGateway_CheckWithBounds(t *testing.T) {
	f := setupGateway(t, 10, 20)

	ciphertext, handle, err := f.backend.Encrypt(150)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, f.caller)
	require.NoError(t, err)

	resp := postSigned(t, f, "/api/check-with-bounds", f.callerKey, &CheckWithBoundsRequest{
		Handle:    handle,
		Lower:     100,
		Upper:     200,
		Proof:     proof,
		Timestamp: time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The global interval is untouched
	var bounds BoundsResponse
	getJSON(t, f, "/api/bounds", &bounds)
	require.Equal(t, uint32(10), bounds.Lower)
	require.Equal(t, uint32(20), bounds.Upper)
}

func TestGateway_AdminSetBounds(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := postSigned(t, f, "/admin/bounds", f.ownerKey, &SetBoundsRequest{
		Lower:     30,
		Upper:     40,
		Timestamp: time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[BoundsResponse](t, resp)
	require.Equal(t, uint32(30), state.Lower)
	require.Equal(t, uint32(40), state.Upper)
	require.Equal(t, f.owner.String(), state.Owner)

	// Non-owner is refused and the interval stays put
	resp = postSigned(t, f, "/admin/bounds", f.callerKey, &SetBoundsRequest{
		Lower:     1,
		Upper:     2,
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)

	var bounds BoundsResponse
	getJSON(t, f, "/api/bounds", &bounds)
	require.Equal(t, uint32(30), bounds.Lower)
	require.Equal(t, uint32(40), bounds.Upper)
}

func TestGateway_AdminSetBoundsInvalidInterval(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := postSigned(t, f, "/admin/bounds", f.ownerKey, &SetBoundsRequest{
		Lower:     40,
		Upper:     30,
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusBadRequest, KindValidation)
}

func TestGateway_AdminTransferOwnership(t *testing.T) {
	f := setupGateway(t, 10, 20)
	newOwner, newOwnerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	resp := postSigned(t, f, "/admin/transfer-ownership", f.ownerKey, &TransferOwnershipRequest{
		NewOwner:  newOwner,
		Timestamp: time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[BoundsResponse](t, resp)
	require.Equal(t, newOwner.String(), state.Owner)

	// The previous owner lost governance rights; the new owner has them
	resp = postSigned(t, f, "/admin/bounds", f.ownerKey, &SetBoundsRequest{
		Lower:     30,
		Upper:     40,
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)

	resp = postSigned(t, f, "/admin/bounds", newOwnerKey, &SetBoundsRequest{
		Lower:     30,
		Upper:     40,
		Timestamp: time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateway_PublishAndPublicDecrypt(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := submitCheck(t, f, 15)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decodeBody[CheckResponse](t, resp)

	// Before publication, public decryption is refused
	resp = postJSON(t, f, "/api/decrypt/public", &PublicDecryptRequest{Handle: check.ResultHandle})
	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)

	// Publication is open to any principal, not only the caller
	_, bystanderKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	resp = postSigned(t, f, "/api/last-result/publish", bystanderKey, &PublishRequest{
		Timestamp: time.Now().Unix(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, f, "/api/decrypt/public", &PublicDecryptRequest{Handle: check.ResultHandle})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pub := decodeBody[PublicDecryptResponse](t, resp)
	require.True(t, pub.Plaintext.Bool())
}

func TestGateway_PublishEmptySlot(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := postSigned(t, f, "/api/last-result/publish", f.callerKey, &PublishRequest{
		Timestamp: time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusNotFound, KindNotFound)
}

func TestGateway_DecryptDeniedForOutsider(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := submitCheck(t, f, 15)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decodeBody[CheckResponse](t, resp)

	_, outsiderKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	resp = postSigned(t, f, "/api/decrypt", outsiderKey, &DecryptRequest{
		Handle:      check.ResultHandle,
		ResponseKey: ephemeral.PublicKey().Bytes(),
		Timestamp:   time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusForbidden, KindAuthorization)
}

func TestGateway_DecryptUnknownHandle(t *testing.T) {
	f := setupGateway(t, 10, 20)

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	resp := postSigned(t, f, "/api/decrypt", f.callerKey, &DecryptRequest{
		Handle:      fhe.ComputeHandle([]byte("never admitted")),
		ResponseKey: ephemeral.PublicKey().Bytes(),
		Timestamp:   time.Now().Unix(),
	})
	requireErrorKind(t, resp, http.StatusNotFound, KindNotFound)
}

func TestGateway_Events(t *testing.T) {
	f := setupGateway(t, 10, 20)

	resp := submitCheck(t, f, 15)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)

	var events EventsResponse
	getJSON(t, f, "/api/events", &events)
	require.Len(t, events.Events, 2)
	require.Equal(t, eventlog.KindBoundsUpdated, events.Events[0].Kind)
	require.Equal(t, eventlog.KindRangeChecked, events.Events[1].Kind)

	// Polling from a known sequence number
	getJSON(t, f, "/api/events?after=1", &events)
	require.Len(t, events.Events, 1)
	require.Equal(t, eventlog.KindRangeChecked, events.Events[0].Kind)

	getJSON(t, f, "/api/events?after=2", &events)
	require.Empty(t, events.Events)

	badResp, err := http.Get(f.server.URL + "/api/events?after=notanumber")
	require.NoError(t, err)
	defer badResp.Body.Close()
	requireErrorKind(t, badResp, http.StatusBadRequest, KindValidation)
}

func TestGateway_Version(t *testing.T) {
	f := setupGateway(t, 10, 20)

	var version VersionResponse
	getJSON(t, f, "/api/version", &version)
	require.Equal(t, common.Version, version.Version)
}

func TestGateway_LastResultEmpty(t *testing.T) {
	f := setupGateway(t, 10, 20)

	var last LastResultResponse
	getJSON(t, f, "/api/last-result", &last)
	require.Empty(t, last.ResultHandle)
}
