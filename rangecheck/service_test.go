package rangecheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealbit/rangecheck/common"
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
)

type serviceFixture struct {
	service *Service
	backend *fhe.InMemoryCoprocessor
	store   *eventlog.MemoryStore

	owner   crypto.PublicKey
	selfKey crypto.PublicKey
	caller  crypto.PublicKey
}

func setupService(t *testing.T, lower, upper uint32) *serviceFixture {
	t.Helper()

	backend, err := fhe.NewInMemoryCoprocessor()
	require.NoError(t, err)

	owner, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	selfKey, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	caller, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	store := eventlog.NewMemoryStore()
	service, err := NewService(&ServiceConfig{
		Owner:        owner,
		ServiceKey:   selfKey,
		InitialLower: lower,
		InitialUpper: upper,
	}, backend, eventlog.NewEmitter(store, nil))
	require.NoError(t, err)

	return &serviceFixture{
		service: service,
		backend: backend,
		store:   store,
		owner:   owner,
		selfKey: selfKey,
		caller:  caller,
	}
}

// submitInput prepares an encrypted input and its admission proof on the
// fixture's backend, as a client would before calling the service.
func submitInput(t *testing.T, f *serviceFixture, value uint32, caller crypto.PublicKey) (fhe.Handle, []byte) {
	t.Helper()

	ciphertext, handle, err := f.backend.Encrypt(value)
	require.NoError(t, err)
	proof, err := f.backend.ProveInput(ciphertext, caller)
	require.NoError(t, err)
	return handle, proof
}

func decryptVerdict(t *testing.T, f *serviceFixture, handle fhe.Handle, requester crypto.PublicKey) bool {
	t.Helper()

	plaintext, err := f.backend.Decrypt(context.Background(), handle, requester)
	require.NoError(t, err)
	require.Equal(t, fhe.TypeBool, plaintext.Type)
	return plaintext.Bool()
}

func listEvents(t *testing.T, f *serviceFixture) []*eventlog.Event {
	t.Helper()

	events, err := f.store.List(context.Background(), 0, 0)
	require.NoError(t, err)
	return events
}

func TestNewService_ValidatesConfig(t *testing.T) {
	backend, err := fhe.NewInMemoryCoprocessor()
	require.NoError(t, err)
	owner, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	selfKey, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	emitter := eventlog.NewEmitter(eventlog.NewMemoryStore(), nil)

	_, err = NewService(&ServiceConfig{Owner: owner, ServiceKey: selfKey, InitialLower: 20, InitialUpper: 10}, backend, emitter)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Empty interval: nothing satisfies lower <= x < lower
	_, err = NewService(&ServiceConfig{Owner: owner, ServiceKey: selfKey, InitialLower: 10, InitialUpper: 10}, backend, emitter)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewService(&ServiceConfig{ServiceKey: selfKey, InitialLower: 10, InitialUpper: 20}, backend, emitter)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewService(&ServiceConfig{Owner: owner, InitialLower: 10, InitialUpper: 20}, backend, emitter)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewService_RecordsInitialBounds(t *testing.T) {
	f := setupService(t, 10, 20)

	events := listEvents(t, f)
	require.Len(t, events, 1)
	require.Equal(t, eventlog.KindBoundsUpdated, events[0].Kind)
	require.Equal(t, uint32(10), events[0].Lower)
	require.Equal(t, uint32(20), events[0].Upper)
	require.Equal(t, uint64(1), events[0].Seq)
}

func TestSetBounds(t *testing.T) {
	f := setupService(t, 10, 20)

	require.NoError(t, f.service.SetBounds(context.Background(), f.owner, 30, 40))
	require.Equal(t, uint32(30), f.service.LowerBound())
	require.Equal(t, uint32(40), f.service.UpperBound())

	events := listEvents(t, f)
	require.Len(t, events, 2)
	require.Equal(t, eventlog.KindBoundsUpdated, events[1].Kind)
	require.Equal(t, uint32(30), events[1].Lower)
	require.Equal(t, uint32(40), events[1].Upper)
}

func TestSetBounds_OwnerOnly(t *testing.T) {
	f := setupService(t, 10, 20)

	err := f.service.SetBounds(context.Background(), f.caller, 30, 40)
	require.ErrorIs(t, err, ErrNotOwner)

	// Authorization is decided before the interval is validated, so a
	// non-owner probing with a bad interval sees the same refusal.
	err = f.service.SetBounds(context.Background(), f.caller, 40, 30)
	require.ErrorIs(t, err, ErrNotOwner)
	require.NotErrorIs(t, err, ErrInvalidInput)

	err = f.service.SetBounds(context.Background(), crypto.PublicKey{}, 30, 40)
	require.ErrorIs(t, err, ErrNotOwner)

	require.Equal(t, uint32(10), f.service.LowerBound())
	require.Equal(t, uint32(20), f.service.UpperBound())
	require.Len(t, listEvents(t, f), 1)
}

func TestSetBounds_RejectsInvalidInterval(t *testing.T) {
	f := setupService(t, 10, 20)

	err := f.service.SetBounds(context.Background(), f.owner, 40, 30)
	require.ErrorIs(t, err, ErrInvalidInput)
	err = f.service.SetBounds(context.Background(), f.owner, 30, 30)
	require.ErrorIs(t, err, ErrInvalidInput)

	require.Equal(t, uint32(10), f.service.LowerBound())
	require.Equal(t, uint32(20), f.service.UpperBound())
	require.Len(t, listEvents(t, f), 1)
}

func TestTransferOwnership(t *testing.T) {
	f := setupService(t, 10, 20)
	newOwner, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, f.service.TransferOwnership(context.Background(), f.owner, newOwner))
	require.True(t, f.service.Owner().Equal(newOwner))

	// The previous owner has no residual rights
	err = f.service.SetBounds(context.Background(), f.owner, 30, 40)
	require.ErrorIs(t, err, ErrNotOwner)
	require.NoError(t, f.service.SetBounds(context.Background(), newOwner, 30, 40))

	events := listEvents(t, f)
	require.Len(t, events, 3)
	require.Equal(t, eventlog.KindOwnershipTransferred, events[1].Kind)
	require.Equal(t, f.owner.String(), events[1].PreviousOwner)
	require.Equal(t, newOwner.String(), events[1].NewOwner)
}

func TestTransferOwnership_Rejections(t *testing.T) {
	f := setupService(t, 10, 20)
	newOwner, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	err = f.service.TransferOwnership(context.Background(), f.caller, newOwner)
	require.ErrorIs(t, err, ErrNotOwner)

	// Transferring to the null principal would make the service
	// permanently ungovernable
	err = f.service.TransferOwnership(context.Background(), f.owner, crypto.PublicKey{})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.True(t, f.service.Owner().Equal(f.owner))
	require.Len(t, listEvents(t, f), 1)
}

func TestCheckInRange_Verdicts(t *testing.T) {
	f := setupService(t, 10, 20)

	cases := []struct {
		name    string
		value   uint32
		inRange bool
	}{
		{"well inside", 15, true},
		{"at lower bound", 10, true},
		{"just below lower", 9, false},
		{"at upper bound", 20, false},
		{"just below upper", 19, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handle, proof := submitInput(t, f, tc.value, f.caller)
			verdict, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
			require.NoError(t, err)
			require.False(t, verdict.IsZero())
			require.Equal(t, tc.inRange, decryptVerdict(t, f, verdict, f.caller))
		})
	}
}

func TestCheckInRange_RecordsEvent(t *testing.T) {
	f := setupService(t, 10, 20)

	handle, proof := submitInput(t, f, 15, f.caller)
	verdict, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)

	events := listEvents(t, f)
	require.Len(t, events, 2)
	require.Equal(t, eventlog.KindRangeChecked, events[1].Kind)
	require.Equal(t, f.caller.String(), events[1].Caller)
	require.Equal(t, uint32(10), events[1].Lower)
	require.Equal(t, uint32(20), events[1].Upper)
	require.Equal(t, verdict.String(), events[1].ResultHandle)
}

func TestCheckInRange_EmptyProof(t *testing.T) {
	f := setupService(t, 10, 20)

	handle, _ := submitInput(t, f, 15, f.caller)
	_, err := f.service.CheckInRange(context.Background(), f.caller, handle, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	require.True(t, f.service.LastResultHandle().IsZero())
	require.Len(t, listEvents(t, f), 1)
}

func TestCheckInRange_NullCaller(t *testing.T) {
	f := setupService(t, 10, 20)

	handle, proof := submitInput(t, f, 15, f.caller)
	_, err := f.service.CheckInRange(context.Background(), crypto.PublicKey{}, handle, proof)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckInRange_VerifierRejection(t *testing.T) {
	f := setupService(t, 10, 20)
	imposter, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// Proof bound to one caller, submitted by another
	handle, proof := submitInput(t, f, 15, f.caller)
	_, err = f.service.CheckInRange(context.Background(), imposter, handle, proof)
	require.ErrorIs(t, err, ErrVerificationFailed)

	require.True(t, f.service.LastResultHandle().IsZero())
	require.Len(t, listEvents(t, f), 1)
}

func TestCheckInRange_ResultAccess(t *testing.T) {
	f := setupService(t, 10, 20)
	outsider, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	handle, proof := submitInput(t, f, 15, f.caller)
	verdict, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)

	// Caller and service can decrypt, nobody else
	require.True(t, decryptVerdict(t, f, verdict, f.caller))
	require.True(t, decryptVerdict(t, f, verdict, f.selfKey))
	_, err = f.backend.Decrypt(context.Background(), verdict, outsider)
	require.ErrorIs(t, err, fhe.ErrNotAllowed)
	_, err = f.backend.DecryptPublic(context.Background(), verdict)
	require.ErrorIs(t, err, fhe.ErrNotPublic)

	require.NoError(t, f.service.MakeLastPublic(context.Background(), f.caller))
	require.True(t, decryptVerdict(t, f, verdict, outsider))
	plaintext, err := f.backend.DecryptPublic(context.Background(), verdict)
	require.NoError(t, err)
	require.True(t, plaintext.Bool())
}

func TestCheckInRangeWithBounds(t *testing.T) {
	f := setupService(t, 10, 20)

	// 150 is outside the global interval but inside the per-call one
	handle, proof := submitInput(t, f, 150, f.caller)
	verdict, err := f.service.CheckInRangeWithBounds(context.Background(), f.caller, handle, 100, 200, proof)
	require.NoError(t, err)
	require.True(t, decryptVerdict(t, f, verdict, f.caller))

	// The global interval is untouched
	require.Equal(t, uint32(10), f.service.LowerBound())
	require.Equal(t, uint32(20), f.service.UpperBound())

	events := listEvents(t, f)
	require.Len(t, events, 2)
	require.Equal(t, eventlog.KindRangeChecked, events[1].Kind)
	require.Equal(t, uint32(100), events[1].Lower)
	require.Equal(t, uint32(200), events[1].Upper)

	// A later global check still uses the configured interval
	handle, proof = submitInput(t, f, 150, f.caller)
	verdict, err = f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)
	require.False(t, decryptVerdict(t, f, verdict, f.caller))
}

func TestCheckInRangeWithBounds_RejectsInvalidInterval(t *testing.T) {
	f := setupService(t, 10, 20)

	handle, proof := submitInput(t, f, 15, f.caller)
	_, err := f.service.CheckInRangeWithBounds(context.Background(), f.caller, handle, 50, 50, proof)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.service.CheckInRangeWithBounds(context.Background(), f.caller, handle, 60, 50, proof)
	require.ErrorIs(t, err, ErrInvalidInput)

	require.Len(t, listEvents(t, f), 1)
}

func TestLastResultHandle_Overwrite(t *testing.T) {
	f := setupService(t, 10, 20)
	require.True(t, f.service.LastResultHandle().IsZero())

	handle, proof := submitInput(t, f, 15, f.caller)
	first, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)
	require.Equal(t, first, f.service.LastResultHandle())

	handle, proof = submitInput(t, f, 25, f.caller)
	second, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, second, f.service.LastResultHandle())

	// Overwriting the slot does not revoke access to the earlier result
	require.True(t, decryptVerdict(t, f, first, f.caller))
	require.False(t, decryptVerdict(t, f, second, f.caller))
}

func TestMakeLastPublic_AnyPrincipal(t *testing.T) {
	f := setupService(t, 10, 20)
	bystander, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	handle, proof := submitInput(t, f, 15, f.caller)
	verdict, err := f.service.CheckInRange(context.Background(), f.caller, handle, proof)
	require.NoError(t, err)

	// Publication is open to every principal, not only the caller that
	// produced the result or the owner.
	require.NoError(t, f.service.MakeLastPublic(context.Background(), bystander))

	plaintext, err := f.backend.DecryptPublic(context.Background(), verdict)
	require.NoError(t, err)
	require.True(t, plaintext.Bool())
}

func TestMakeLastPublic_EmptySlot(t *testing.T) {
	f := setupService(t, 10, 20)

	err := f.service.MakeLastPublic(context.Background(), f.caller)
	require.ErrorIs(t, err, ErrNoResult)
}

func TestVersion(t *testing.T) {
	f := setupService(t, 10, 20)
	require.Equal(t, common.Version, f.service.Version())
}
