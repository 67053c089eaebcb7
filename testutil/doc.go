/*
Package testutil provides testing utilities for the range check service.

This package contains fixtures and generators for integration tests that
need a fully wired service: a ciphertext backend, an event store, the
governing principals and the service itself, assembled in one call.

# Stack Fixtures

NewTestStack builds a complete service using the option pattern:

	// In-process backend, memory store
	stack := testutil.NewTestStack(t)

	// Split deployment: coprocessor served over HTTP, events in bolt
	stack := testutil.NewTestStack(t,
	    testutil.WithRemoteCoprocessor(),
	    testutil.WithBoltStore(),
	    testutil.WithInterval(100, 200),
	)

With WithRemoteCoprocessor the stack serves the coprocessor API from an
HTTP test server and wires the service through the remote backend. The
Client field holds a separate coprocessor instance sharing the deployment
seed, so tests produce inputs exactly the way external callers do:

	handle, proof := stack.SubmitInput(t, 42, caller)
	result, err := stack.Service.CheckInRange(ctx, caller, handle, proof)

The served attestation evidence is bound to stack.CoprocessorURL, which
lets tests exercise vetting against the real endpoint string.

# Key Generators

MustKeyPair returns a fresh Ed25519 key pair and fails the test on error;
GenerateTestKeyPair is the error-returning variant for non-test callers
of test binaries.
*/
package testutil
