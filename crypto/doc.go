// Package crypto provides identity and transport primitives for the
// range-check service.
//
// This package implements the cryptographic operations the service surfaces
// build on:
//
//   - Ed25519 principal identities: every caller, and the service itself, is
//     identified by a public key, and ownership and access grants are keyed
//     by it
//   - Signed request envelopes that bind a request body to the principal
//     submitting it
//   - ECIES (ephemeral P-256 + AES-256-GCM) encryption for delivering
//     privately decrypted values to a requester-supplied key
//
// The crypto package provides low-level primitives that are used by the
// coprocessor, service core, and gateway implementations.
//
// # Principals
//
// A principal is any keypair that interacts with the service: the bounds
// owner, callers submitting encrypted inputs, and decryption requesters.
// The zero-length PublicKey is the null principal and is rejected wherever
// a real identity is required.
//
// # Signed Requests
//
// State-mutating requests travel as Signed[T] envelopes. The signature
// covers the serialized body concatenated with the signer's public key, so
// an envelope cannot be replayed under a different identity. Recover
// verifies and returns both the body and the authenticated signer.
//
// # Private Delivery
//
// Decrypted values are never returned in the clear. A requester supplies an
// ephemeral P-256 public key and receives the plaintext sealed with ECIES,
// so only the holder of the ephemeral private key can read the result.
package crypto
