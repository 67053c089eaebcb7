// Package eventlog records what the range-check service did: bounds
// changes, completed checks and ownership handovers, in an append-only log
// with strictly increasing sequence numbers.
//
// The log is the externally observable history of the service. Callers
// page through it by sequence number (List), and live consumers can attach
// to an Emitter, which appends to a Store first and then fans the record
// out to subscribers without ever blocking the emitting call.
//
// Three stores are provided: MemoryStore for tests, BoltStore for
// single-node file persistence, and PostgresStore for shared deployments.
package eventlog
