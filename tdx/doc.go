// Package tdx handles coprocessor attestation: generating TDX DCAP quotes
// on the coprocessor side and vetting them on the deployment side before
// any confidential input is routed.
//
// A Provider produces and verifies evidence. TDXProvider uses the local
// TDX device, RemoteDCAPProvider delegates quote generation to a separate
// service, and DummyProvider exercises the full vetting path without
// hardware. Quotes commit to report data derived from the coprocessor's
// endpoint, so evidence is bound to one deployment.
//
// Verification alone proves the quote is genuine; it does not prove the
// code is trusted. The Vetter additionally matches the quote's measurement
// registers against a published allowed set, fetched from a URL or pinned
// statically.
package tdx
