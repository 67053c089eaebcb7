package fhe

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/sealbit/rangecheck/crypto"
)

const (
	sealingSaltSize = 16
	sealingKeySize  = 32
	proofMACSize    = 32
)

type storedCiphertext struct {
	blob  []byte
	ctype CiphertextType
}

// InMemoryCoprocessor implements the fhe.Backend interface for testing and
// demos. It simulates a confidential coprocessor by sealing plaintexts in
// memory, but does not provide actual hardware security guarantees and its
// operations are not homomorphic: comparisons unseal internally.
type InMemoryCoprocessor struct {
	// A unique identifier for this coprocessor instance
	instanceID []byte

	// Root key for deriving per-ciphertext sealing keys
	rootKey []byte

	// Key for issuing and checking input proofs
	proofKey []byte

	// Attestation verification key
	attestationKey []byte

	// Mutex for thread safety
	mu sync.Mutex

	// Admitted ciphertexts by handle
	ciphertexts map[Handle]*storedCiphertext

	// Decryption grants by handle and principal
	grants map[Handle]map[string]bool

	// Publicly decryptable handles
	public map[Handle]bool
}

// NewInMemoryCoprocessor creates a new in-memory coprocessor instance.
// Each instance has its own unique ID and keys.
func NewInMemoryCoprocessor() (*InMemoryCoprocessor, error) {
	// Generate a random instance ID
	instanceID := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, instanceID); err != nil {
		return nil, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	// Generate a random root sealing key
	rootKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, rootKey); err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}

	// Generate a random input proof key
	proofKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, proofKey); err != nil {
		return nil, fmt.Errorf("failed to generate proof key: %w", err)
	}

	// Generate a random attestation key
	attestationKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, attestationKey); err != nil {
		return nil, fmt.Errorf("failed to generate attestation key: %w", err)
	}

	return &InMemoryCoprocessor{
		instanceID:     instanceID,
		rootKey:        rootKey,
		proofKey:       proofKey,
		attestationKey: attestationKey,
		ciphertexts:    make(map[Handle]*storedCiphertext),
		grants:         make(map[Handle]map[string]bool),
		public:         make(map[Handle]bool),
	}, nil
}

// NewDemoCoprocessor creates an in-memory coprocessor with keys derived
// deterministically from seed. Two processes started with the same seed
// agree on ciphertexts and proofs, which lets a CLI encrypt locally and
// submit the result to a daemon running the demo backend.
func NewDemoCoprocessor(seed []byte) (*InMemoryCoprocessor, error) {
	if len(seed) == 0 {
		return nil, errors.New("demo seed must not be empty")
	}

	reader := hkdf.New(sha256.New, seed, nil, []byte("rangecheck-demo-coprocessor-v1"))

	instanceID := make([]byte, 16)
	rootKey := make([]byte, 32)
	proofKey := make([]byte, 32)
	attestationKey := make([]byte, 32)
	for _, key := range [][]byte{instanceID, rootKey, proofKey, attestationKey} {
		if _, err := io.ReadFull(reader, key); err != nil {
			return nil, fmt.Errorf("failed to derive demo keys: %w", err)
		}
	}

	return &InMemoryCoprocessor{
		instanceID:     instanceID,
		rootKey:        rootKey,
		proofKey:       proofKey,
		attestationKey: attestationKey,
		ciphertexts:    make(map[Handle]*storedCiphertext),
		grants:         make(map[Handle]map[string]bool),
		public:         make(map[Handle]bool),
	}, nil
}

// Encrypt seals a 32-bit value and returns the ciphertext with its handle.
// This is the client-side half of input submission: the ciphertext is not
// admitted until VerifyInput accepts a proof for it.
func (c *InMemoryCoprocessor) Encrypt(value uint32) ([]byte, Handle, error) {
	blob, err := c.seal(TypeUint32, value)
	if err != nil {
		return nil, Handle{}, err
	}
	return blob, ComputeHandle(blob), nil
}

// ProveInput issues an input proof binding a ciphertext to the caller that
// will submit it. The proof carries the ciphertext itself, so admission
// does not require a separate ingestion step.
func (c *InMemoryCoprocessor) ProveInput(ciphertext []byte, caller crypto.PublicKey) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("ciphertext must not be empty")
	}

	handle := ComputeHandle(ciphertext)

	h := hmac.New(sha256.New, c.proofKey)
	h.Write(handle[:])
	h.Write(caller)
	mac := h.Sum(nil)

	proof := make([]byte, 0, len(ciphertext)+len(mac))
	proof = append(proof, ciphertext...)
	proof = append(proof, mac...)
	return proof, nil
}

// VerifyInput checks an input proof and admits the ciphertext it carries.
// A failed check leaves the coprocessor state unchanged.
func (c *InMemoryCoprocessor) VerifyInput(ctx context.Context, handle Handle, proof []byte, caller crypto.PublicKey) error {
	if len(proof) <= proofMACSize {
		return fmt.Errorf("%w: proof too short", ErrInvalidProof)
	}

	// Extract the ciphertext and MAC
	ciphertext := proof[:len(proof)-proofMACSize]
	mac := proof[len(proof)-proofMACSize:]

	// The proof must name the handle it was issued for
	if ComputeHandle(ciphertext) != handle {
		return fmt.Errorf("%w: proof does not match handle", ErrInvalidProof)
	}

	h := hmac.New(sha256.New, c.proofKey)
	h.Write(handle[:])
	h.Write(caller)
	expectedMAC := h.Sum(nil)

	if !hmac.Equal(mac, expectedMAC) {
		return fmt.Errorf("%w: proof not issued for caller", ErrInvalidProof)
	}

	// The ciphertext must unseal cleanly before it is admitted
	plaintext, err := c.unseal(ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext integrity check failed", ErrInvalidProof)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ciphertexts[handle] = &storedCiphertext{blob: ciphertext, ctype: plaintext.Type}
	return nil
}

// TrivialEncrypt produces an admitted ciphertext of a public constant.
func (c *InMemoryCoprocessor) TrivialEncrypt(ctx context.Context, value uint32) (Handle, error) {
	return c.sealAndAdmit(TypeUint32, value)
}

// Ge returns a handle to an encrypted boolean: a >= b.
func (c *InMemoryCoprocessor) Ge(ctx context.Context, a, b Handle) (Handle, error) {
	left, right, err := c.uint32Operands(a, b)
	if err != nil {
		return Handle{}, err
	}
	return c.sealBoolAndAdmit(left >= right)
}

// Lt returns a handle to an encrypted boolean: a < b.
func (c *InMemoryCoprocessor) Lt(ctx context.Context, a, b Handle) (Handle, error) {
	left, right, err := c.uint32Operands(a, b)
	if err != nil {
		return Handle{}, err
	}
	return c.sealBoolAndAdmit(left < right)
}

// And returns a handle to the conjunction of two encrypted booleans.
func (c *InMemoryCoprocessor) And(ctx context.Context, a, b Handle) (Handle, error) {
	left, err := c.operand(a, TypeBool)
	if err != nil {
		return Handle{}, err
	}
	right, err := c.operand(b, TypeBool)
	if err != nil {
		return Handle{}, err
	}
	return c.sealBoolAndAdmit(left.Bool() && right.Bool())
}

// Allow grants grantee the right to decrypt handle. Grants are idempotent.
func (c *InMemoryCoprocessor) Allow(ctx context.Context, handle Handle, grantee crypto.PublicKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.ciphertexts[handle]; !exists {
		return ErrUnknownHandle
	}

	if c.grants[handle] == nil {
		c.grants[handle] = make(map[string]bool)
	}
	c.grants[handle][grantee.String()] = true
	return nil
}

// MakePubliclyDecryptable marks handle as decryptable by anyone.
func (c *InMemoryCoprocessor) MakePubliclyDecryptable(ctx context.Context, handle Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.ciphertexts[handle]; !exists {
		return ErrUnknownHandle
	}

	c.public[handle] = true
	return nil
}

// IsAllowed reports whether grantee may decrypt handle.
func (c *InMemoryCoprocessor) IsAllowed(ctx context.Context, handle Handle, grantee crypto.PublicKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.public[handle] {
		return true, nil
	}
	return c.grants[handle][grantee.String()], nil
}

// IsPubliclyDecryptable reports whether handle is decryptable by anyone.
func (c *InMemoryCoprocessor) IsPubliclyDecryptable(ctx context.Context, handle Handle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.public[handle], nil
}

// Decrypt returns the plaintext behind handle for requester.
func (c *InMemoryCoprocessor) Decrypt(ctx context.Context, handle Handle, requester crypto.PublicKey) (*Plaintext, error) {
	c.mu.Lock()
	stored, exists := c.ciphertexts[handle]
	allowed := c.public[handle] || c.grants[handle][requester.String()]
	c.mu.Unlock()

	if !exists {
		return nil, ErrUnknownHandle
	}
	if !allowed {
		return nil, ErrNotAllowed
	}
	return c.unseal(stored.blob)
}

// DecryptPublic returns the plaintext behind a publicly decryptable handle.
func (c *InMemoryCoprocessor) DecryptPublic(ctx context.Context, handle Handle) (*Plaintext, error) {
	c.mu.Lock()
	stored, exists := c.ciphertexts[handle]
	isPublic := c.public[handle]
	c.mu.Unlock()

	if !exists {
		return nil, ErrUnknownHandle
	}
	if !isPublic {
		return nil, ErrNotPublic
	}
	return c.unseal(stored.blob)
}

// Attest produces an attestation of this coprocessor instance.
// For this in-memory implementation, we just create a signed blob
// containing the instance ID.
func (c *InMemoryCoprocessor) Attest(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Create a simple attestation containing the instance ID
	// In a real coprocessor, this would include measurements of the code
	attestationData := make([]byte, len(c.instanceID)+8)
	binary.LittleEndian.PutUint64(attestationData[:8], uint64(0x1234)) // Version
	copy(attestationData[8:], c.instanceID)

	// Sign the attestation with the attestation key
	h := hmac.New(sha256.New, c.attestationKey)
	h.Write(attestationData)
	signature := h.Sum(nil)

	// Combine data and signature
	result := make([]byte, len(attestationData)+len(signature))
	copy(result, attestationData)
	copy(result[len(attestationData):], signature)

	return result, nil
}

// VerifyAttestation verifies an attestation produced by a coprocessor
// sharing this instance's attestation key.
func (c *InMemoryCoprocessor) VerifyAttestation(attestation []byte) (bool, error) {
	if len(attestation) < 56 { // 8 bytes version + 16 bytes ID + 32 bytes signature
		return false, errors.New("attestation data too short")
	}

	// Extract the data and signature
	data := attestation[:len(attestation)-32]
	signature := attestation[len(attestation)-32:]

	h := hmac.New(sha256.New, c.attestationKey)
	h.Write(data)
	expectedSignature := h.Sum(nil)

	if hmac.Equal(signature, expectedSignature) {
		return true, nil
	}

	return false, nil
}

// GetInstanceID returns the unique identifier for this coprocessor instance.
// This is primarily for testing purposes.
func (c *InMemoryCoprocessor) GetInstanceID() []byte {
	return c.instanceID
}

func (c *InMemoryCoprocessor) sealAndAdmit(t CiphertextType, value uint32) (Handle, error) {
	blob, err := c.seal(t, value)
	if err != nil {
		return Handle{}, err
	}

	handle := ComputeHandle(blob)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ciphertexts[handle] = &storedCiphertext{blob: blob, ctype: t}
	return handle, nil
}

func (c *InMemoryCoprocessor) sealBoolAndAdmit(value bool) (Handle, error) {
	var encoded uint32
	if value {
		encoded = 1
	}
	return c.sealAndAdmit(TypeBool, encoded)
}

func (c *InMemoryCoprocessor) operand(handle Handle, want CiphertextType) (*Plaintext, error) {
	c.mu.Lock()
	stored, exists := c.ciphertexts[handle]
	c.mu.Unlock()

	if !exists {
		return nil, ErrUnknownHandle
	}
	if stored.ctype != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, stored.ctype, want)
	}
	return c.unseal(stored.blob)
}

func (c *InMemoryCoprocessor) uint32Operands(a, b Handle) (uint32, uint32, error) {
	left, err := c.operand(a, TypeUint32)
	if err != nil {
		return 0, 0, err
	}
	right, err := c.operand(b, TypeUint32)
	if err != nil {
		return 0, 0, err
	}
	return left.Uint32(), right.Uint32(), nil
}

// seal encrypts a plaintext under a fresh per-ciphertext key derived from
// the root key. The salt travels with the ciphertext so unsealing can
// re-derive the key.
func (c *InMemoryCoprocessor) seal(t CiphertextType, value uint32) ([]byte, error) {
	salt := make([]byte, sealingSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := c.deriveSealingKey(salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, encodePlaintext(t, value), c.instanceID)

	// Combine salt, nonce and ciphertext
	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// unseal decrypts a ciphertext previously sealed by a coprocessor holding
// the same root key and instance ID.
func (c *InMemoryCoprocessor) unseal(blob []byte) (*Plaintext, error) {
	if len(blob) < sealingSaltSize+12 {
		return nil, errors.New("sealed data too short")
	}

	salt := blob[:sealingSaltSize]
	nonce := blob[sealingSaltSize : sealingSaltSize+12]
	ciphertext := blob[sealingSaltSize+12:]

	key, err := c.deriveSealingKey(salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, c.instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return decodePlaintext(plaintext)
}

func (c *InMemoryCoprocessor) deriveSealingKey(salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, c.rootKey, salt, []byte("rangecheck-ciphertext-v1"))
	key := make([]byte, sealingKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	return key, nil
}
