package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Lower uint32 `json:"lower"`
	Upper uint32 `json:"upper"`
}

func TestSignedRoundTrip(t *testing.T) {
	pubKey, privKey, err := GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &testRequest{Lower: 10, Upper: 20})
	require.NoError(t, err)

	obj, signer, err := signed.Recover()
	require.NoError(t, err)
	require.True(t, pubKey.Equal(signer))
	require.Equal(t, uint32(10), obj.Lower)
	require.Equal(t, uint32(20), obj.Upper)
}

func TestSignedSerializationRoundTrip(t *testing.T) {
	_, privKey, err := GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &testRequest{Lower: 1, Upper: 2})
	require.NoError(t, err)

	data, err := SerializeMessage(signed)
	require.NoError(t, err)

	decoded, err := UnmarshalMessage[Signed[testRequest]](data)
	require.NoError(t, err)

	obj, _, err := decoded.Recover()
	require.NoError(t, err)
	require.Equal(t, uint32(1), obj.Lower)
	require.Equal(t, uint32(2), obj.Upper)
}

func TestSignedRejectsTamperedObject(t *testing.T) {
	_, privKey, err := GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &testRequest{Lower: 10, Upper: 20})
	require.NoError(t, err)

	signed.Object.Upper = 21
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestSignedRejectsSubstitutedSigner(t *testing.T) {
	_, privKey, err := GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &testRequest{Lower: 10, Upper: 20})
	require.NoError(t, err)

	// Swapping the public key must invalidate the envelope, otherwise a
	// relay could re-attribute a request to a different principal.
	signed.PublicKey = otherPub
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestUnsafeObjectSkipsVerification(t *testing.T) {
	_, privKey, err := GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privKey, &testRequest{Lower: 10, Upper: 20})
	require.NoError(t, err)

	signed.Signature = NewSignature(make([]byte, 64))
	require.Equal(t, uint32(10), signed.UnsafeObject().Lower)
}
