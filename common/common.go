// Package common holds identifiers shared across rangecheck packages and binaries.
package common

// PackageName identifies this module in logs and metrics.
const PackageName = "rangecheck"

// Version is the identifying string reported by the service's version
// endpoint. Overridable at build time:
//
//	go build -ldflags "-X github.com/sealbit/rangecheck/common.Version=rangecheck/v1.2.3"
var Version = "rangecheck/v1.0.0"
