package gateway

import (
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
)

// Wire types for the gateway API. Mutating requests travel inside
// crypto.Signed envelopes; the recovered signer is the acting principal.
// Handles serialize as hex, byte slices as base64.

// CheckRequest submits an encrypted input against the global bounds.
type CheckRequest struct {
	Handle    fhe.Handle `json:"handle"`
	Proof     []byte     `json:"proof"`
	Timestamp int64      `json:"timestamp"`
}

// CheckWithBoundsRequest submits an encrypted input against a one-off
// interval that leaves the global bounds untouched.
type CheckWithBoundsRequest struct {
	Handle    fhe.Handle `json:"handle"`
	Lower     uint32     `json:"lower"`
	Upper     uint32     `json:"upper"`
	Proof     []byte     `json:"proof"`
	Timestamp int64      `json:"timestamp"`
}

// CheckResponse returns the handle of the encrypted verdict.
type CheckResponse struct {
	ResultHandle fhe.Handle `json:"result_handle"`
}

// SetBoundsRequest replaces the global interval. Owner only.
type SetBoundsRequest struct {
	Lower     uint32 `json:"lower"`
	Upper     uint32 `json:"upper"`
	Timestamp int64  `json:"timestamp"`
}

// TransferOwnershipRequest hands the service to a new owner. Owner only.
type TransferOwnershipRequest struct {
	NewOwner  crypto.PublicKey `json:"new_owner"`
	Timestamp int64            `json:"timestamp"`
}

// PublishRequest makes the current last result publicly decryptable.
type PublishRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// DecryptRequest asks for the plaintext behind a handle the signer may
// decrypt. ResponseKey is the requester's ephemeral P-256 public key in
// SEC1 uncompressed form; the plaintext travels back encrypted to it.
type DecryptRequest struct {
	Handle      fhe.Handle `json:"handle"`
	ResponseKey []byte     `json:"response_key"`
	Timestamp   int64      `json:"timestamp"`
}

// DecryptResponse carries an ECIES message; decrypting it yields the
// JSON-encoded fhe.Plaintext.
type DecryptResponse struct {
	EncryptedResult []byte `json:"encrypted_result"`
}

// PublicDecryptRequest asks for the plaintext behind a publicly
// decryptable handle. No authorization.
type PublicDecryptRequest struct {
	Handle fhe.Handle `json:"handle"`
}

// PublicDecryptResponse returns the plaintext in the clear.
type PublicDecryptResponse struct {
	Plaintext *fhe.Plaintext `json:"plaintext"`
}

// BoundsResponse reports the governance state: the interval in force and
// the owning principal.
type BoundsResponse struct {
	Lower uint32 `json:"lower"`
	Upper uint32 `json:"upper"`
	Owner string `json:"owner"`
}

// LastResultResponse reports the handle in the shared last-result slot,
// empty when no check has completed yet.
type LastResultResponse struct {
	ResultHandle string `json:"result_handle"`
}

// VersionResponse reports the service build identifier.
type VersionResponse struct {
	Version string `json:"version"`
}

// EventsResponse is a page of the append-only event log.
type EventsResponse struct {
	Events []*eventlog.Event `json:"events"`
}

// ErrorResponse carries the failure message and its kind, so callers can
// distinguish causes without parsing messages.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error kinds reported in ErrorResponse.
const (
	KindAuthorization = "authorization"
	KindValidation    = "validation"
	KindVerification  = "verification"
	KindNotFound      = "not_found"
	KindInternal      = "internal"
)
