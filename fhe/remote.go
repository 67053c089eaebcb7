package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sealbit/rangecheck/crypto"
)

// Wire types for the coprocessor HTTP API. Handles serialize as hex,
// byte slices as base64.
type (
	verifyInputRequest struct {
		Handle Handle           `json:"handle"`
		Proof  []byte           `json:"proof"`
		Caller crypto.PublicKey `json:"caller"`
	}

	trivialEncryptRequest struct {
		Value uint32 `json:"value"`
	}

	binaryOpRequest struct {
		A Handle `json:"a"`
		B Handle `json:"b"`
	}

	handleResponse struct {
		Handle Handle `json:"handle"`
	}

	aclRequest struct {
		Handle  Handle           `json:"handle"`
		Grantee crypto.PublicKey `json:"grantee,omitempty"`
	}

	allowedResponse struct {
		Allowed bool `json:"allowed"`
	}

	publicResponse struct {
		Public bool `json:"public"`
	}

	decryptRequest struct {
		Handle    Handle           `json:"handle"`
		Requester crypto.PublicKey `json:"requester,omitempty"`
	}

	attestationResponse struct {
		Attestation []byte `json:"attestation"`
	}

	remoteErrorResponse struct {
		Error string `json:"error"`
	}
)

// RemoteCoprocessor implements the fhe.Backend interface against a
// coprocessor service reachable over HTTP. All confidential computation
// happens on the remote side; this client only moves handles, proofs and
// access-control requests.
type RemoteCoprocessor struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteCoprocessor creates a client for the coprocessor service at
// baseURL.
func NewRemoteCoprocessor(baseURL string) *RemoteCoprocessor {
	return &RemoteCoprocessor{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyInput submits an input proof for admission.
func (r *RemoteCoprocessor) VerifyInput(ctx context.Context, handle Handle, proof []byte, caller crypto.PublicKey) error {
	req := verifyInputRequest{Handle: handle, Proof: proof, Caller: caller}
	return r.postJSON(ctx, "/verify-input", req, nil)
}

// TrivialEncrypt produces a ciphertext of a public constant on the remote
// coprocessor.
func (r *RemoteCoprocessor) TrivialEncrypt(ctx context.Context, value uint32) (Handle, error) {
	var resp handleResponse
	if err := r.postJSON(ctx, "/trivial-encrypt", trivialEncryptRequest{Value: value}, &resp); err != nil {
		return Handle{}, err
	}
	return resp.Handle, nil
}

// Ge returns a handle to an encrypted boolean: a >= b.
func (r *RemoteCoprocessor) Ge(ctx context.Context, a, b Handle) (Handle, error) {
	return r.binaryOp(ctx, "/ge", a, b)
}

// Lt returns a handle to an encrypted boolean: a < b.
func (r *RemoteCoprocessor) Lt(ctx context.Context, a, b Handle) (Handle, error) {
	return r.binaryOp(ctx, "/lt", a, b)
}

// And returns a handle to the conjunction of two encrypted booleans.
func (r *RemoteCoprocessor) And(ctx context.Context, a, b Handle) (Handle, error) {
	return r.binaryOp(ctx, "/and", a, b)
}

// Allow grants grantee the right to decrypt handle.
func (r *RemoteCoprocessor) Allow(ctx context.Context, handle Handle, grantee crypto.PublicKey) error {
	return r.postJSON(ctx, "/acl/allow", aclRequest{Handle: handle, Grantee: grantee}, nil)
}

// MakePubliclyDecryptable marks handle as decryptable by anyone.
func (r *RemoteCoprocessor) MakePubliclyDecryptable(ctx context.Context, handle Handle) error {
	return r.postJSON(ctx, "/acl/make-public", aclRequest{Handle: handle}, nil)
}

// IsAllowed reports whether grantee may decrypt handle.
func (r *RemoteCoprocessor) IsAllowed(ctx context.Context, handle Handle, grantee crypto.PublicKey) (bool, error) {
	var resp allowedResponse
	if err := r.postJSON(ctx, "/acl/is-allowed", aclRequest{Handle: handle, Grantee: grantee}, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// IsPubliclyDecryptable reports whether handle is decryptable by anyone.
func (r *RemoteCoprocessor) IsPubliclyDecryptable(ctx context.Context, handle Handle) (bool, error) {
	var resp publicResponse
	if err := r.postJSON(ctx, "/acl/is-public", aclRequest{Handle: handle}, &resp); err != nil {
		return false, err
	}
	return resp.Public, nil
}

// Decrypt returns the plaintext behind handle for requester.
func (r *RemoteCoprocessor) Decrypt(ctx context.Context, handle Handle, requester crypto.PublicKey) (*Plaintext, error) {
	var resp Plaintext
	if err := r.postJSON(ctx, "/decrypt", decryptRequest{Handle: handle, Requester: requester}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecryptPublic returns the plaintext behind a publicly decryptable handle.
func (r *RemoteCoprocessor) DecryptPublic(ctx context.Context, handle Handle) (*Plaintext, error) {
	var resp Plaintext
	if err := r.postJSON(ctx, "/decrypt/public", decryptRequest{Handle: handle}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Attest fetches the coprocessor's identity attestation.
func (r *RemoteCoprocessor) Attest(ctx context.Context) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/attestation", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}

	var attResp attestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&attResp); err != nil {
		return nil, err
	}
	return attResp.Attestation, nil
}

func (r *RemoteCoprocessor) binaryOp(ctx context.Context, path string, a, b Handle) (Handle, error) {
	var resp handleResponse
	if err := r.postJSON(ctx, path, binaryOpRequest{A: a, B: b}, &resp); err != nil {
		return Handle{}, err
	}
	return resp.Handle, nil
}

// postJSON sends a JSON POST request and decodes the response into
// response if it is non-nil.
func (r *RemoteCoprocessor) postJSON(ctx context.Context, path string, request, response interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}

	if response != nil {
		return json.NewDecoder(resp.Body).Decode(response)
	}
	return nil
}

// remoteError turns a non-OK coprocessor response into an error,
// reconstructing the package sentinels so errors.Is works across the wire.
func remoteError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var errResp remoteErrorResponse
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error != "" {
		for _, sentinel := range []error{ErrUnknownHandle, ErrInvalidProof, ErrTypeMismatch, ErrNotAllowed, ErrNotPublic} {
			if strings.HasPrefix(errResp.Error, sentinel.Error()) {
				return sentinel
			}
		}
		return fmt.Errorf("coprocessor returned status %d: %s", resp.StatusCode, errResp.Error)
	}

	return fmt.Errorf("coprocessor returned status %d: %s", resp.StatusCode, string(bodyBytes))
}
