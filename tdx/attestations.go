package tdx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/client"
	proto_checkconfig "github.com/google/go-tdx-guest/proto/checkconfig"
	proto "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/validate"
	"github.com/google/go-tdx-guest/verify"
)

// Provider abstracts attestation generation and verification for a
// coprocessor deployment. The coprocessor side calls Attest with report
// data binding its identity; the gateway side calls Verify on the evidence
// before routing confidential inputs to that coprocessor.
type Provider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(evidence []byte, expectedReportData [64]byte) (Measurements, error)
}

// Measurements maps measurement register indices to values extracted from
// verified attestation evidence. Register 0 is MRTD; 1 through 4 are
// RTMR0 through RTMR3.
type Measurements map[int][]byte

// TDXProvider generates and verifies quotes using the local TDX device.
type TDXProvider struct{}

func (p *TDXProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest generates a TDX quote over the report data.
func (p *TDXProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	return qp.GetRawQuote(reportData)
}

// Verify validates a TDX quote and returns its measurements.
func (p *TDXProvider) Verify(evidence []byte, expectedReportData [64]byte) (Measurements, error) {
	return VerifyDCAP(evidence, expectedReportData[:])
}

// RemoteDCAPProvider requests quotes from a quote-generation service, for
// deployments where the coprocessor process has no direct access to the
// TDX device. Verification still happens locally.
type RemoteDCAPProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteDCAPProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest requests a TDX quote from the remote quote provider.
func (p *RemoteDCAPProvider) Attest(reportData [64]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.URL, hex.EncodeToString(reportData[:]))

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

// Verify validates a TDX quote and returns its measurements.
func (p *RemoteDCAPProvider) Verify(evidence []byte, expectedReportData [64]byte) (Measurements, error) {
	return VerifyDCAP(evidence, expectedReportData[:])
}

func mustDecodeHex(data string) []byte {
	decoded, err := hex.DecodeString(data)
	if err != nil {
		panic(err.Error())
	}
	return decoded
}

// dcapPolicy is the acceptance policy for coprocessor quotes: the Intel QE
// vendor ID, TD attributes with only the SEPT VE disable bit set, and the
// report data the quote must commit to.
func dcapPolicy(expectedReportData []byte) *proto_checkconfig.Config {
	return &proto_checkconfig.Config{
		RootOfTrust: &proto_checkconfig.RootOfTrust{
			CheckCrl:      true,
			GetCollateral: true,
		},
		Policy: &proto_checkconfig.Policy{
			HeaderPolicy: &proto_checkconfig.HeaderPolicy{
				MinimumQeSvn:  0,
				MinimumPceSvn: 0,
				QeVendorId:    mustDecodeHex("939a7233f79c4ca9940a0db3957f0607"),
			},
			TdQuoteBodyPolicy: &proto_checkconfig.TDQuoteBodyPolicy{
				TdAttributes: mustDecodeHex("0000001000000000"),
				ReportData:   expectedReportData,
			},
		},
	}
}

// VerifyDCAP validates a raw TDX DCAP quote against the expected report
// data and returns the quote's measurement registers.
func VerifyDCAP(evidence []byte, expectedReportData []byte) (Measurements, error) {
	anyQuote, err := abi.QuoteToProto(evidence)
	if err != nil {
		return nil, fmt.Errorf("parsing quote: %v", err)
	}
	quote, ok := anyQuote.(*proto.QuoteV4)
	if !ok {
		return nil, errors.New("quote is not a QuoteV4")
	}

	config := dcapPolicy(expectedReportData)

	options, err := verify.RootOfTrustToOptions(config.RootOfTrust)
	if err != nil {
		return nil, fmt.Errorf("converting root of trust to options: %w", err)
	}
	if err := verify.TdxQuote(quote, options); err != nil {
		return nil, fmt.Errorf("verifying TDX quote: %w", err)
	}

	opts, err := validate.PolicyToOptions(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("converting policy to options: %v", err)
	}
	if err := validate.TdxQuote(quote, opts); err != nil {
		return nil, fmt.Errorf("validating TDX quote: %v", err)
	}

	body := quote.GetTdQuoteBody()
	return Measurements{
		0: body.MrTd,
		1: body.Rtmrs[0],
		2: body.Rtmrs[1],
		3: body.Rtmrs[2],
		4: body.Rtmrs[3],
	}, nil
}

// DummyProvider exercises the vetting path without TDX hardware: the
// evidence is the report data echoed back, and verification returns fixed
// measurements matching DemoMeasurementSource. Demo and test deployments
// only.
type DummyProvider struct{}

func (p *DummyProvider) AttestationType() string {
	return "dummy-tdx"
}

// Attest returns the report data as mock evidence.
func (p *DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	ret := make([]byte, len(reportData))
	copy(ret, reportData[:])
	return ret, nil
}

// Verify checks that the evidence matches the expected report data.
func (p *DummyProvider) Verify(evidence []byte, expectedReportData [64]byte) (Measurements, error) {
	if !bytes.Equal(evidence, expectedReportData[:]) {
		return nil, errors.New("evidence does not match expected report data")
	}
	return Measurements{
		0: {0},
		1: {1},
		2: {2},
		3: {3},
		4: {4},
	}, nil
}
