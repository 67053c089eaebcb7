// Package gateway exposes the range check service over HTTP.
//
// Mutating endpoints accept crypto.Signed envelopes. The gateway recovers
// the signer from the envelope and uses it as the acting principal for the
// enclosed request, so a request body cannot attribute an action to a key
// that did not sign it. Signed requests carry a unix timestamp that must
// fall within the configured freshness window, which bounds how long a
// captured envelope stays replayable.
//
// Routes are split into two subtrees. /api carries the caller-facing
// operations: submitting checks, reading bounds and the shared result
// slot, publishing the slot, decryption, the event feed and the version.
// /admin carries governance: updating the interval and transferring
// ownership, both refused for any signer but the current owner. Browser
// access to /api is subject to the configured CORS origins.
//
// Errors are reported as JSON bodies with a machine-readable kind:
// "authorization", "validation", "verification", "not_found" or
// "internal". The kind is stable; the message text is not.
//
// Private decryption never returns plaintext on the wire. The requester
// supplies an ephemeral P-256 public key and receives the plaintext
// encrypted to that key, so only the holder of the ephemeral private key
// can open the response.
//
// When the ciphertext backend runs out of process, VetCoprocessor checks
// its attestation against an allowed-measurement set before the gateway
// starts serving.
package gateway
