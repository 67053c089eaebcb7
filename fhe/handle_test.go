package fhe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeHandle_Deterministic(t *testing.T) {
	a := ComputeHandle([]byte("ciphertext-a"))
	b := ComputeHandle([]byte("ciphertext-a"))
	c := ComputeHandle([]byte("ciphertext-b"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.False(t, a.IsZero())
}

func TestHandle_HexRoundTrip(t *testing.T) {
	handle := ComputeHandle([]byte("some ciphertext"))

	parsed, err := NewHandleFromString(handle.String())
	require.NoError(t, err)
	require.Equal(t, handle, parsed)
}

func TestHandle_ParseErrors(t *testing.T) {
	_, err := NewHandleFromString("not hex")
	require.Error(t, err)

	_, err = NewHandleFromString("abcd")
	require.Error(t, err)

	_, err = NewHandleFromBytes(make([]byte, 31))
	require.Error(t, err)
}

func TestHandle_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Handle Handle `json:"handle"`
	}

	original := payload{Handle: ComputeHandle([]byte("payload ciphertext"))}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.Contains(t, string(data), original.Handle.String())

	var decoded payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original.Handle, decoded.Handle)
}

func TestZeroHandle(t *testing.T) {
	require.True(t, ZeroHandle.IsZero())

	var handle Handle
	require.True(t, handle.IsZero())
	require.Equal(t, ZeroHandle, handle)
}

func TestPlaintextEncodingRoundTrip(t *testing.T) {
	encoded := encodePlaintext(TypeUint32, 0xdeadbeef)
	decoded, err := decodePlaintext(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeUint32, decoded.Type)
	require.Equal(t, uint32(0xdeadbeef), decoded.Uint32())

	encoded = encodePlaintext(TypeBool, 1)
	decoded, err = decodePlaintext(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeBool, decoded.Type)
	require.True(t, decoded.Bool())

	_, err = decodePlaintext([]byte{1, 2, 3})
	require.Error(t, err)
}
