// Package cmd provides the rangecheck command binaries.
//
// # Commands
//
// rangecheckd: The range check gateway daemon. Hosts bounds governance,
// encrypted range checks, the shared result slot and the event feed over
// HTTP, backed by an in-process or remote ciphertext coprocessor.
//
//	go run ./cmd/rangecheckd --listen-addr=:8080 --lower=18 --upper=120
//	go run ./cmd/rangecheckd --config=rangecheckd.yaml
//
// rangecheck-coprocessord: A standalone ciphertext coprocessor serving
// the backend API that rangecheckd's remote backend dials. Attestation
// quotes bind the daemon's public endpoint.
//
//	go run ./cmd/rangecheck-coprocessord --listen-addr=127.0.0.1:8091
//
// rangecheck-cli: CLI for interacting with a deployed gateway: submit
// checks, decrypt verdicts, govern the interval, follow the event log.
//
//	go run ./cmd/rangecheck-cli check --value=42 --decrypt
//	go run ./cmd/rangecheck-cli status
//
// # Split Deployment
//
// By default rangecheckd runs its coprocessor in process. For deployments
// where plaintext access must live in a separate trust domain, start a
// coprocessor daemon and point the gateway at it:
//
//	# Coprocessor, deterministic demo keys
//	go run ./cmd/rangecheck-coprocessord --demo-seed=devnet
//
//	# Gateway, vets the coprocessor's attestation before serving
//	go run ./cmd/rangecheckd --backend=remote --coprocessor-url=http://127.0.0.1:8091
//
// The gateway refuses to start if the coprocessor's attestation evidence
// does not verify for the exact --coprocessor-url string, or if its
// measurements are not in the allowed set.
//
// # Configuration
//
// rangecheckd supports a YAML configuration file via the --config flag;
// command-line flags override config file values. See the rangecheckd
// command documentation for the file format.
package cmd
