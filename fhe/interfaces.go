package fhe

import (
	"context"
	"errors"

	"github.com/sealbit/rangecheck/crypto"
)

var (
	// ErrUnknownHandle is returned when an operation names a handle the
	// coprocessor has never seen or has not admitted.
	ErrUnknownHandle = errors.New("unverified ciphertext handle")

	// ErrInvalidProof is returned when an input proof does not demonstrate
	// that the ciphertext was produced for the claimed caller.
	ErrInvalidProof = errors.New("input proof not valid")

	// ErrTypeMismatch is returned when an operation is applied to a
	// ciphertext of the wrong plaintext type.
	ErrTypeMismatch = errors.New("ciphertext type mismatch")

	// ErrNotAllowed is returned when a principal without an access grant
	// requests decryption of a handle.
	ErrNotAllowed = errors.New("principal not allowed to decrypt handle")

	// ErrNotPublic is returned when public decryption is requested for a
	// handle that has not been made publicly decryptable.
	ErrNotPublic = errors.New("handle not publicly decryptable")
)

// InputVerifier admits externally produced ciphertexts.
// An encrypted input arrives as a handle plus a proof; admission checks
// that the proof binds the ciphertext behind the handle to the submitting
// caller. Only admitted handles are usable in comparisons.
type InputVerifier interface {
	// VerifyInput checks proof for handle on behalf of caller. On success
	// the handle becomes usable as a comparison operand. A failed check
	// leaves the coprocessor state unchanged.
	VerifyInput(ctx context.Context, handle Handle, proof []byte, caller crypto.PublicKey) error
}

// Comparator evaluates operations over ciphertext handles.
// Security: plaintexts never cross this interface. Every operation takes
// handles and returns a handle to a fresh ciphertext.
type Comparator interface {
	// TrivialEncrypt produces a ciphertext of a public constant. The
	// plaintext is not secret; the result exists so constants can be used
	// as comparison operands.
	TrivialEncrypt(ctx context.Context, value uint32) (Handle, error)

	// Ge returns a handle to an encrypted boolean: a >= b.
	Ge(ctx context.Context, a, b Handle) (Handle, error)

	// Lt returns a handle to an encrypted boolean: a < b.
	Lt(ctx context.Context, a, b Handle) (Handle, error)

	// And returns a handle to the conjunction of two encrypted booleans.
	And(ctx context.Context, a, b Handle) (Handle, error)
}

// AccessList tracks which principals may decrypt which handles.
// Grants are idempotent and cannot be revoked.
type AccessList interface {
	// Allow grants grantee the right to decrypt handle.
	Allow(ctx context.Context, handle Handle, grantee crypto.PublicKey) error

	// MakePubliclyDecryptable marks handle as decryptable by anyone.
	// The transition is one way.
	MakePubliclyDecryptable(ctx context.Context, handle Handle) error

	// IsAllowed reports whether grantee may decrypt handle. Publicly
	// decryptable handles are decryptable by every principal.
	IsAllowed(ctx context.Context, handle Handle, grantee crypto.PublicKey) (bool, error)

	// IsPubliclyDecryptable reports whether handle is decryptable by anyone.
	IsPubliclyDecryptable(ctx context.Context, handle Handle) (bool, error)
}

// Decryptor recovers plaintexts for the decryption protocols.
// Security: access control is enforced here, at the coprocessor boundary,
// not by the callers.
type Decryptor interface {
	// Decrypt returns the plaintext behind handle for requester. The
	// requester must hold an access grant or the handle must be publicly
	// decryptable.
	Decrypt(ctx context.Context, handle Handle, requester crypto.PublicKey) (*Plaintext, error)

	// DecryptPublic returns the plaintext behind a publicly decryptable
	// handle. No authorization is required.
	DecryptPublic(ctx context.Context, handle Handle) (*Plaintext, error)
}

// Attester exposes the coprocessor's identity attestation, verified by
// deployments before any confidential input is routed to it.
type Attester interface {
	// Attest produces an attestation of the coprocessor instance.
	Attest(ctx context.Context) ([]byte, error)
}

// Backend combines every coprocessor capability the service consumes.
type Backend interface {
	InputVerifier
	Comparator
	AccessList
	Decryptor
	Attester
}
