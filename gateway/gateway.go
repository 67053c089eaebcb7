package gateway

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/metrics"
	"github.com/sealbit/rangecheck/rangecheck"
	"github.com/sealbit/rangecheck/tdx"
)

// DefaultFreshnessWindow bounds how far a signed request's timestamp may
// deviate from server time before the request is refused as stale.
const DefaultFreshnessWindow = 2 * time.Minute

const defaultEventsPageSize = 100

// Config carries the gateway's own knobs; the service, backend and event
// store are passed to New separately.
type Config struct {
	Log *slog.Logger

	// AllowedOrigins for CORS on the public routes. Empty allows all.
	AllowedOrigins []string

	// FreshnessWindow for signed request timestamps. Zero means
	// DefaultFreshnessWindow.
	FreshnessWindow time.Duration
}

// Gateway is the HTTP surface of the range-check service: public check,
// decryption and observability routes under /api, governance routes under
// /admin. Every mutation is authenticated by its signature envelope; the
// recovered signer is the principal the core service sees.
type Gateway struct {
	service *rangecheck.Service
	backend fhe.Backend
	events  eventlog.Store
	log     *slog.Logger

	origins []string
	window  time.Duration
}

// New creates a gateway over the core service, its coprocessor backend and
// the event store.
func New(config *Config, service *rangecheck.Service, backend fhe.Backend, events eventlog.Store) *Gateway {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	window := config.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Gateway{
		service: service,
		backend: backend,
		events:  events,
		log:     log,
		origins: origins,
		window:  window,
	}
}

// VetCoprocessor fetches the backend's attestation evidence and checks it
// with the vetter. Deployments with a remote coprocessor call this before
// serving traffic; a failure means no confidential input should be routed.
func (g *Gateway) VetCoprocessor(ctx context.Context, vetter *tdx.Vetter, endpoint string) error {
	evidence, err := g.backend.Attest(ctx)
	if err != nil {
		return fmt.Errorf("fetching coprocessor attestation: %w", err)
	}
	measurements, err := vetter.Vet(evidence, endpoint)
	if err != nil {
		return fmt.Errorf("vetting coprocessor: %w", err)
	}
	g.log.Info("coprocessor attestation verified",
		"endpoint", endpoint,
		"attestation_type", vetter.Provider.AttestationType(),
		"registers", len(measurements),
	)
	return nil
}

// RegisterRoutes mounts the gateway API on the router.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   g.origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(g.httpLogger)

		r.Post("/check", g.handleCheck)
		r.Post("/check-with-bounds", g.handleCheckWithBounds)
		r.Get("/bounds", g.handleBounds)
		r.Get("/last-result", g.handleLastResult)
		r.Post("/last-result/publish", g.handlePublish)
		r.Post("/decrypt", g.handleDecrypt)
		r.Post("/decrypt/public", g.handleDecryptPublic)
		r.Get("/events", g.handleEvents)
		r.Get("/version", g.handleVersion)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(g.httpLogger)

		r.Post("/bounds", g.handleSetBounds)
		r.Post("/transfer-ownership", g.handleTransferOwnership)
	})
}

func (g *Gateway) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(g.log, next)
}

func (g *Gateway) handleCheck(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[CheckRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		metrics.IncRangeCheckFailure(apiErr.kind)
		g.writeError(w, apiErr)
		return
	}

	result, err := g.service.CheckInRange(r.Context(), signer, req.Handle, req.Proof)
	if err != nil {
		apiErr := serviceError(err)
		metrics.IncRangeCheckFailure(apiErr.kind)
		g.writeError(w, apiErr)
		return
	}
	metrics.IncRangeCheck()
	g.writeJSON(w, CheckResponse{ResultHandle: result})
}

func (g *Gateway) handleCheckWithBounds(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[CheckWithBoundsRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		metrics.IncRangeCheckFailure(apiErr.kind)
		g.writeError(w, apiErr)
		return
	}

	result, err := g.service.CheckInRangeWithBounds(r.Context(), signer, req.Handle, req.Lower, req.Upper, req.Proof)
	if err != nil {
		apiErr := serviceError(err)
		metrics.IncRangeCheckFailure(apiErr.kind)
		g.writeError(w, apiErr)
		return
	}
	metrics.IncRangeCheck()
	g.writeJSON(w, CheckResponse{ResultHandle: result})
}

func (g *Gateway) handleBounds(w http.ResponseWriter, r *http.Request) {
	lower, upper := g.service.Bounds()
	g.writeJSON(w, BoundsResponse{
		Lower: lower,
		Upper: upper,
		Owner: g.service.Owner().String(),
	})
}

func (g *Gateway) handleLastResult(w http.ResponseWriter, r *http.Request) {
	handle := g.service.LastResultHandle()
	resp := LastResultResponse{}
	if !handle.IsZero() {
		resp.ResultHandle = handle.String()
	}
	g.writeJSON(w, resp)
}

func (g *Gateway) handlePublish(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[PublishRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		g.writeError(w, apiErr)
		return
	}

	if err := g.service.MakeLastPublic(r.Context(), signer); err != nil {
		g.writeError(w, serviceError(err))
		return
	}
	metrics.IncResultPublicized()
	g.writeJSON(w, LastResultResponse{ResultHandle: g.service.LastResultHandle().String()})
}

func (g *Gateway) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[DecryptRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		g.writeError(w, apiErr)
		return
	}

	responseKey, err := ecdh.P256().NewPublicKey(req.ResponseKey)
	if err != nil {
		g.writeError(w, &apiError{http.StatusBadRequest, KindValidation, fmt.Errorf("invalid response key: %v", err)})
		return
	}

	plaintext, err := g.backend.Decrypt(r.Context(), req.Handle, signer)
	if err != nil {
		g.writeError(w, serviceError(err))
		return
	}

	body, err := json.Marshal(plaintext)
	if err != nil {
		g.writeError(w, &apiError{http.StatusInternalServerError, KindInternal, err})
		return
	}
	encrypted, err := crypto.Encrypt(responseKey, body)
	if err != nil {
		g.writeError(w, &apiError{http.StatusInternalServerError, KindInternal, err})
		return
	}
	metrics.IncDecryption("private")
	g.writeJSON(w, DecryptResponse{EncryptedResult: encrypted.Bytes()})
}

func (g *Gateway) handleDecryptPublic(w http.ResponseWriter, r *http.Request) {
	var req PublicDecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, &apiError{http.StatusBadRequest, KindValidation, err})
		return
	}

	plaintext, err := g.backend.DecryptPublic(r.Context(), req.Handle)
	if err != nil {
		g.writeError(w, serviceError(err))
		return
	}
	metrics.IncDecryption("public")
	g.writeJSON(w, PublicDecryptResponse{Plaintext: plaintext})
}

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	after := uint64(0)
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			g.writeError(w, &apiError{http.StatusBadRequest, KindValidation, fmt.Errorf("invalid after parameter: %v", err)})
			return
		}
		after = parsed
	}
	limit := defaultEventsPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			g.writeError(w, &apiError{http.StatusBadRequest, KindValidation, errors.New("invalid limit parameter")})
			return
		}
		limit = parsed
	}

	events, err := g.events.List(r.Context(), after, limit)
	if err != nil {
		g.writeError(w, &apiError{http.StatusInternalServerError, KindInternal, err})
		return
	}
	if events == nil {
		events = []*eventlog.Event{}
	}
	g.writeJSON(w, EventsResponse{Events: events})
}

func (g *Gateway) handleVersion(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, VersionResponse{Version: g.service.Version()})
}

func (g *Gateway) handleSetBounds(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[SetBoundsRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		g.writeError(w, apiErr)
		return
	}

	if err := g.service.SetBounds(r.Context(), signer, req.Lower, req.Upper); err != nil {
		g.writeError(w, serviceError(err))
		return
	}
	g.writeGovernanceState(w)
}

func (g *Gateway) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	req, signer, apiErr := decodeSigned[TransferOwnershipRequest](r)
	if apiErr == nil {
		apiErr = g.checkFreshness(req.Timestamp)
	}
	if apiErr != nil {
		g.writeError(w, apiErr)
		return
	}

	if err := g.service.TransferOwnership(r.Context(), signer, req.NewOwner); err != nil {
		g.writeError(w, serviceError(err))
		return
	}
	g.writeGovernanceState(w)
}

func (g *Gateway) writeGovernanceState(w http.ResponseWriter) {
	lower, upper := g.service.Bounds()
	g.writeJSON(w, BoundsResponse{
		Lower: lower,
		Upper: upper,
		Owner: g.service.Owner().String(),
	})
}

// checkFreshness refuses timestamps outside the replay window on either
// side, so neither replayed nor pre-dated envelopes are accepted.
func (g *Gateway) checkFreshness(timestamp int64) *apiError {
	drift := time.Since(time.Unix(timestamp, 0))
	if drift > g.window || drift < -g.window {
		return &apiError{http.StatusForbidden, KindAuthorization, errors.New("request timestamp outside freshness window")}
	}
	return nil
}

func (g *Gateway) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.log.Error("failed to encode response", "err", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, apiErr *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr.err.Error(), Kind: apiErr.kind})
}

type apiError struct {
	status int
	kind   string
	err    error
}

// decodeSigned decodes a signed envelope and verifies its signature. The
// recovered signer is the acting principal; nothing in the request body can
// re-attribute it.
func decodeSigned[T any](r *http.Request) (*T, crypto.PublicKey, *apiError) {
	var signed crypto.Signed[T]
	if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
		return nil, nil, &apiError{http.StatusBadRequest, KindValidation, fmt.Errorf("decoding request: %w", err)}
	}
	obj, signer, err := signed.Recover()
	if err != nil {
		return nil, nil, &apiError{http.StatusForbidden, KindAuthorization, err}
	}
	return obj, signer, nil
}

// serviceError maps core and backend sentinels to HTTP statuses and error
// kinds.
func serviceError(err error) *apiError {
	switch {
	case errors.Is(err, rangecheck.ErrNotOwner):
		return &apiError{http.StatusForbidden, KindAuthorization, err}
	case errors.Is(err, rangecheck.ErrInvalidInput):
		return &apiError{http.StatusBadRequest, KindValidation, err}
	case errors.Is(err, rangecheck.ErrVerificationFailed):
		return &apiError{http.StatusUnprocessableEntity, KindVerification, err}
	case errors.Is(err, rangecheck.ErrNoResult), errors.Is(err, fhe.ErrUnknownHandle):
		return &apiError{http.StatusNotFound, KindNotFound, err}
	case errors.Is(err, fhe.ErrNotAllowed), errors.Is(err, fhe.ErrNotPublic):
		return &apiError{http.StatusForbidden, KindAuthorization, err}
	}
	return &apiError{http.StatusInternalServerError, KindInternal, err}
}
