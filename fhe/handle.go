package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HandleSize is the length of a ciphertext handle in bytes.
const HandleSize = 32

// Handle identifies a ciphertext held by the coprocessor. It is derived as
// the Keccak-256 digest of the ciphertext bytes, so a handle commits to the
// exact ciphertext it names without revealing anything about the plaintext.
type Handle [HandleSize]byte

// ZeroHandle is the sentinel for "no ciphertext". It is what the service
// reports before any comparison has been recorded.
var ZeroHandle = Handle{}

// ComputeHandle derives the handle for a ciphertext.
func ComputeHandle(ciphertext []byte) Handle {
	h := sha3.NewLegacyKeccak256()
	h.Write(ciphertext)
	var handle Handle
	copy(handle[:], h.Sum(nil))
	return handle
}

// NewHandleFromBytes creates a Handle from a byte slice.
func NewHandleFromBytes(data []byte) (Handle, error) {
	var handle Handle
	if len(data) != HandleSize {
		return handle, fmt.Errorf("invalid handle length: got %d, want %d", len(data), HandleSize)
	}
	copy(handle[:], data)
	return handle, nil
}

// NewHandleFromString creates a Handle from a hex-encoded string.
func NewHandleFromString(data string) (Handle, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return Handle{}, err
	}
	return NewHandleFromBytes(rawBytes)
}

// IsZero reports whether this is the zero handle.
func (h Handle) IsZero() bool {
	return h == ZeroHandle
}

// Bytes returns the handle as a byte slice.
func (h Handle) Bytes() []byte {
	return h[:]
}

// String returns a hex-encoded string representation of the handle.
func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler so handles serialize as hex
// in JSON payloads.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(data []byte) error {
	parsed, err := NewHandleFromString(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// CiphertextType tags the plaintext type carried by a ciphertext.
type CiphertextType uint8

const (
	// TypeBool is an encrypted boolean, the result type of comparisons.
	TypeBool CiphertextType = iota
	// TypeUint32 is an encrypted 32-bit unsigned integer, the input type
	// of comparisons.
	TypeUint32
)

// String returns a human-readable name for the type.
func (t CiphertextType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeUint32:
		return "uint32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Plaintext is a decrypted value together with its type tag. Boolean values
// are encoded as 0 or 1.
type Plaintext struct {
	Type  CiphertextType `json:"type"`
	Value uint32         `json:"value"`
}

// Bool interprets the plaintext as a boolean.
func (p *Plaintext) Bool() bool {
	return p.Value != 0
}

// Uint32 interprets the plaintext as a 32-bit unsigned integer.
func (p *Plaintext) Uint32() uint32 {
	return p.Value
}

// plaintextEncodingSize is the sealed plaintext encoding: 1 type byte
// followed by a 4-byte big-endian value.
const plaintextEncodingSize = 5

func encodePlaintext(t CiphertextType, value uint32) []byte {
	buf := make([]byte, plaintextEncodingSize)
	buf[0] = byte(t)
	buf[1] = byte(value >> 24)
	buf[2] = byte(value >> 16)
	buf[3] = byte(value >> 8)
	buf[4] = byte(value)
	return buf
}

func decodePlaintext(data []byte) (*Plaintext, error) {
	if len(data) != plaintextEncodingSize {
		return nil, errors.New("malformed sealed plaintext")
	}
	value := uint32(data[1])<<24 | uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
	return &Plaintext{Type: CiphertextType(data[0]), Value: value}, nil
}
