package rangecheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sealbit/rangecheck/common"
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
)

// ServiceConfig carries the construction parameters for a Service.
type ServiceConfig struct {
	Log *slog.Logger

	// Owner is the principal allowed to change the bounds and to hand
	// the service over to a new owner.
	Owner crypto.PublicKey

	// ServiceKey identifies the service itself. Every result handle is
	// made decryptable by it alongside the caller, so the service can
	// always read back results it produced.
	ServiceKey crypto.PublicKey

	// InitialLower and InitialUpper define the half-open interval
	// [InitialLower, InitialUpper) in force at construction.
	InitialLower uint32
	InitialUpper uint32
}

// Service answers "is x within [lower, upper)?" for encrypted values of x
// without ever seeing x in the clear. Inputs arrive as coprocessor handles
// with admission proofs, the comparison runs homomorphically on the
// coprocessor, and the encrypted boolean verdict is returned as a fresh
// handle that both the caller and the service may decrypt.
//
// The most recent verdict is also kept in a single slot, overwritten by
// every completed check regardless of caller. The slot is a convenience
// cache for sequential use: under concurrent checks the handle returned by
// CheckInRange is the only reliable way to refer to a specific result.
type Service struct {
	backend fhe.Backend
	emitter *eventlog.Emitter
	log     *slog.Logger

	selfKey crypto.PublicKey

	mu         sync.Mutex
	owner      crypto.PublicKey
	lower      uint32
	upper      uint32
	lastResult fhe.Handle
}

// NewService validates the configuration, records the initial bounds in the
// event log and returns a ready service. Construction uses the same
// recording path as SetBounds, so the log always opens with a bounds event
// and replaying it reconstructs every interval the service ever enforced.
func NewService(config *ServiceConfig, backend fhe.Backend, emitter *eventlog.Emitter) (*Service, error) {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	if config.Owner.IsZero() {
		return nil, fmt.Errorf("%w: owner must not be the null principal", ErrInvalidInput)
	}
	if config.ServiceKey.IsZero() {
		return nil, fmt.Errorf("%w: service key must not be the null principal", ErrInvalidInput)
	}
	if config.InitialLower >= config.InitialUpper {
		return nil, fmt.Errorf("%w: lower bound %d must be less than upper bound %d",
			ErrInvalidInput, config.InitialLower, config.InitialUpper)
	}

	s := &Service{
		backend: backend,
		emitter: emitter,
		log:     log,
		selfKey: config.ServiceKey,
		owner:   config.Owner,
		lower:   config.InitialLower,
		upper:   config.InitialUpper,
	}

	if err := emitter.Emit(context.Background(), eventlog.NewBoundsUpdated(s.lower, s.upper)); err != nil {
		return nil, fmt.Errorf("recording initial bounds: %w", err)
	}
	log.Info("range check service initialized",
		"owner", s.owner.String(),
		"lower", s.lower,
		"upper", s.upper,
	)
	return s, nil
}

// SetBounds replaces the global interval with [lower, upper). Only the
// owner may call it; authorization is decided before the new interval is
// even looked at, so a non-owner probing with garbage bounds learns nothing
// beyond the ownership refusal.
func (s *Service) SetBounds(ctx context.Context, caller crypto.PublicKey, lower, upper uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owner.Equal(caller) {
		return ErrNotOwner
	}
	if lower >= upper {
		return fmt.Errorf("%w: lower bound %d must be less than upper bound %d", ErrInvalidInput, lower, upper)
	}

	if err := s.emitter.Emit(ctx, eventlog.NewBoundsUpdated(lower, upper)); err != nil {
		return fmt.Errorf("recording bounds update: %w", err)
	}
	s.lower = lower
	s.upper = upper
	s.log.Info("bounds updated", "lower", lower, "upper", upper)
	return nil
}

// TransferOwnership hands control to newOwner. Only the current owner may
// call it, and the null principal is refused so the service cannot be
// bricked into an ownerless state.
func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner crypto.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owner.Equal(caller) {
		return ErrNotOwner
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner must not be the null principal", ErrInvalidInput)
	}

	if err := s.emitter.Emit(ctx, eventlog.NewOwnershipTransferred(s.owner.String(), newOwner.String())); err != nil {
		return fmt.Errorf("recording ownership transfer: %w", err)
	}
	previous := s.owner
	s.owner = crypto.NewPublicKeyFromBytes(newOwner)
	s.log.Info("ownership transferred",
		"previous_owner", previous.String(),
		"new_owner", s.owner.String(),
	)
	return nil
}

// CheckInRange tests the encrypted input against the global bounds in force
// at the moment of the call. The input handle must be accompanied by an
// admission proof binding the ciphertext to the caller; a rejected proof
// fails the call with ErrVerificationFailed and leaves no trace.
//
// On success the encrypted verdict handle is returned, decryptable by the
// caller and by the service, and the last-result slot is overwritten.
func (s *Service) CheckInRange(ctx context.Context, caller crypto.PublicKey, input fhe.Handle, proof []byte) (fhe.Handle, error) {
	s.mu.Lock()
	lower, upper := s.lower, s.upper
	s.mu.Unlock()
	return s.runCheck(ctx, caller, input, lower, upper, proof)
}

// CheckInRangeWithBounds behaves like CheckInRange but tests against a
// caller-supplied interval for this one call. The global bounds are neither
// consulted nor modified; the per-call interval is validated on its own and
// is the one recorded in the event log.
func (s *Service) CheckInRangeWithBounds(ctx context.Context, caller crypto.PublicKey, input fhe.Handle, lower, upper uint32, proof []byte) (fhe.Handle, error) {
	if lower >= upper {
		return fhe.ZeroHandle, fmt.Errorf("%w: lower bound %d must be less than upper bound %d", ErrInvalidInput, lower, upper)
	}
	return s.runCheck(ctx, caller, input, lower, upper, proof)
}

// runCheck is the shared comparison pipeline. The homomorphic work happens
// outside the service mutex; only the commit, one event append plus the
// slot overwrite, runs under it, so the two land together or not at all.
func (s *Service) runCheck(ctx context.Context, caller crypto.PublicKey, input fhe.Handle, lower, upper uint32, proof []byte) (fhe.Handle, error) {
	if caller.IsZero() {
		return fhe.ZeroHandle, fmt.Errorf("%w: caller principal required", ErrInvalidInput)
	}
	if len(proof) == 0 {
		return fhe.ZeroHandle, fmt.Errorf("%w: input proof must not be empty", ErrInvalidInput)
	}

	if err := s.backend.VerifyInput(ctx, input, proof, caller); err != nil {
		return fhe.ZeroHandle, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	encLower, err := s.backend.TrivialEncrypt(ctx, lower)
	if err != nil {
		return fhe.ZeroHandle, fmt.Errorf("encrypting lower bound: %w", err)
	}
	encUpper, err := s.backend.TrivialEncrypt(ctx, upper)
	if err != nil {
		return fhe.ZeroHandle, fmt.Errorf("encrypting upper bound: %w", err)
	}

	geLower, err := s.backend.Ge(ctx, input, encLower)
	if err != nil {
		return fhe.ZeroHandle, fmt.Errorf("comparing against lower bound: %w", err)
	}
	ltUpper, err := s.backend.Lt(ctx, input, encUpper)
	if err != nil {
		return fhe.ZeroHandle, fmt.Errorf("comparing against upper bound: %w", err)
	}
	verdict, err := s.backend.And(ctx, geLower, ltUpper)
	if err != nil {
		return fhe.ZeroHandle, fmt.Errorf("combining comparison results: %w", err)
	}

	if err := s.backend.Allow(ctx, verdict, s.selfKey); err != nil {
		return fhe.ZeroHandle, fmt.Errorf("granting service access to result: %w", err)
	}
	if err := s.backend.Allow(ctx, verdict, caller); err != nil {
		return fhe.ZeroHandle, fmt.Errorf("granting caller access to result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.emitter.Emit(ctx, eventlog.NewRangeChecked(caller.String(), lower, upper, verdict.String())); err != nil {
		return fhe.ZeroHandle, fmt.Errorf("recording check: %w", err)
	}
	s.lastResult = verdict
	s.log.Info("range check completed",
		"caller", caller.String(),
		"lower", lower,
		"upper", upper,
		"result_handle", verdict.String(),
	)
	return verdict, nil
}

// LastResultHandle returns the handle of the most recently completed check,
// or the zero handle if none has completed. The slot is shared across all
// callers and overwritten by every check, so under concurrency the value
// read here may belong to someone else's check; callers that need their own
// result should use the handle CheckInRange returned to them.
func (s *Service) LastResultHandle() fhe.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// MakeLastPublic widens the current last result to public decryptability.
// Any principal may call it, including principals that never ran a check:
// the slot is deliberately a shared scratch cell, and publishing it is part
// of that contract. Deployments that need caller-scoped publication should
// front this with their own policy. The widening is permanent for the
// affected handle.
//
// If the slot is overwritten concurrently, the handle captured at entry is
// the one publicized.
func (s *Service) MakeLastPublic(ctx context.Context, caller crypto.PublicKey) error {
	s.mu.Lock()
	handle := s.lastResult
	s.mu.Unlock()

	if handle.IsZero() {
		return ErrNoResult
	}
	if err := s.backend.MakePubliclyDecryptable(ctx, handle); err != nil {
		return fmt.Errorf("widening result visibility: %w", err)
	}
	s.log.Info("last result made publicly decryptable",
		"handle", handle.String(),
		"caller", caller.String(),
	)
	return nil
}

// Bounds returns the global interval currently in force as one consistent
// pair.
func (s *Service) Bounds() (lower, upper uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lower, s.upper
}

// LowerBound returns the global lower bound currently in force.
func (s *Service) LowerBound() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lower
}

// UpperBound returns the global upper bound currently in force.
func (s *Service) UpperBound() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upper
}

// Owner returns the current owning principal.
func (s *Service) Owner() crypto.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return crypto.NewPublicKeyFromBytes(s.owner)
}

// Version reports the service build identifier.
func (s *Service) Version() string {
	return common.Version
}
