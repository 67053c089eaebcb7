// Package rangecheck implements a confidential range membership service:
// callers learn whether an encrypted value x lies within a half-open
// interval [lower, upper) without the service, the owner, or other callers
// ever seeing x.
//
// # Model
//
// The service holds a pair of public bounds governed by a single owner.
// The owner can replace the bounds or hand the service to a new owner;
// both mutations, like every check, are recorded in an append-only event
// log. Values stay encrypted end to end: inputs arrive as coprocessor
// handles with admission proofs, the comparison
//
//	(x >= lower) AND (x < upper)
//
// runs homomorphically, and the verdict comes back as a handle to an
// encrypted boolean that only the caller and the service may decrypt.
//
// # Results
//
// The handle returned by CheckInRange is the primary way to refer to a
// verdict. The service additionally keeps the most recent verdict in a
// single shared slot, overwritten by every completed check regardless of
// caller. The slot is a convenience for sequential use; under concurrent
// checks LastResultHandle may return another caller's verdict, and code
// that cares which check it is looking at must use the returned handle.
//
// # Publication
//
// MakeLastPublic widens the current slot contents to public
// decryptability, and any principal may call it, including principals
// that never ran a check. Combined with the shared slot this means one
// caller can publish the encrypted verdict of another caller's check.
// That is the intended contract of the slot, not an oversight, but
// deployments that need caller-scoped publication must enforce their own
// policy in front of this operation.
package rangecheck
