package tdx

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ReportDataForCoprocessor computes the report data a coprocessor binds
// into its attestation evidence: a hash over the endpoint it serves.
// Vetting succeeds only when the verifier derives the report data from the
// same endpoint string, so a quote generated for one deployment cannot be
// replayed for another.
func ReportDataForCoprocessor(endpoint string) [64]byte {
	hash := sha256.New()
	hash.Write([]byte("rangecheck-coprocessor-v1"))
	hash.Write([]byte(endpoint))

	var reportData [64]byte
	copy(reportData[:], hash.Sum(nil))
	return reportData
}

// Vetter checks coprocessor attestation evidence before a deployment
// routes confidential inputs to that coprocessor: the evidence must verify
// against the report data expected for the endpoint, and the extracted
// measurements must match a published allowed set.
type Vetter struct {
	Provider Provider
	Source   MeasurementSource
}

// Vet verifies evidence for a coprocessor serving at endpoint and returns
// the extracted measurements. A nil Source skips the allowed-set check and
// accepts any evidence that verifies.
func (v *Vetter) Vet(evidence []byte, endpoint string) (Measurements, error) {
	if len(evidence) == 0 {
		return nil, errors.New("no attestation evidence")
	}

	measurements, err := v.Provider.Verify(evidence, ReportDataForCoprocessor(endpoint))
	if err != nil {
		return nil, fmt.Errorf("could not verify attestation evidence: %w", err)
	}

	if v.Source != nil {
		allowed, err := v.Source.GetAllowedMeasurements()
		if err != nil {
			return nil, fmt.Errorf("could not fetch allowed measurements: %w", err)
		}
		if _, err := VerifyMeasurementsMatch(allowed, measurements); err != nil {
			return nil, fmt.Errorf("attestation is not allowed: %w", err)
		}
	}
	return measurements, nil
}
