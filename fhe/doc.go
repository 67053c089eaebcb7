// Package fhe defines the confidential-compute boundary of the range-check
// service: ciphertext handles, input admission, encrypted comparison, and
// the access-control list governing decryption.
//
// # Model
//
// Values under test never appear in plaintext on the service side. A caller
// encrypts a 32-bit value into a ciphertext; the ciphertext is named by its
// handle, the Keccak-256 digest of the ciphertext bytes. The service and
// its callers exchange handles, and all computation over the underlying
// values is delegated to a coprocessor behind the Backend interface.
//
// # Input Admission
//
// An externally produced ciphertext enters the system through
// InputVerifier.VerifyInput: the caller submits the handle together with a
// proof binding the ciphertext to the caller's identity. Admission is
// all-or-nothing; a rejected proof leaves no trace. Only admitted handles
// are usable as comparison operands.
//
// # Comparisons
//
// Comparator exposes the operations the range check composes: trivial
// encryption of public bounds, Ge and Lt over encrypted 32-bit integers,
// and And over encrypted booleans. Every operation returns a handle to a
// fresh ciphertext; plaintexts never cross the interface.
//
// # Access Control
//
// Decryption rights are tracked per handle. Grants are add-only: a
// principal can be allowed, and a handle can be made publicly decryptable,
// but neither transition can be undone. Decryptor enforces the list at the
// coprocessor boundary, so a compromised caller cannot skip the check.
//
// # Backends
//
// Two implementations are provided. InMemoryCoprocessor simulates the
// coprocessor in process for tests and demos, sealing plaintexts with
// AES-GCM under HKDF-derived keys; it is not homomorphic and offers no
// hardware guarantees. RemoteCoprocessor delegates to a coprocessor
// service over HTTP and reconstructs this package's error sentinels from
// wire responses; CoprocessorServer is the serving side of that API.
package fhe
