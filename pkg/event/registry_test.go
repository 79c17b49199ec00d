package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestCreateCanonicalEvent(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRegistry(t).WithClock(func() time.Time { return fixed })

	ev, err := r.Create(KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ana")
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, KindGenesisVerdict, ev.Kind)
	require.Equal(t, "member/ana", ev.ActorID)
	require.Equal(t, fixed, ev.Timestamp)
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Create(Kind("UNHEARD_OF"), map[string]any{}, "member/ana")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Error(), "unrecognized")
}

func TestCreateRejectsMissingRequiredField(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Create(KindGenesisVerdict, map[string]any{"why": "x"}, "member/ana")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestCreateRejectsWrongFieldType(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Create(KindCovenantBreached, map[string]any{"covenantId": "c1", "severity": "fatal"}, "member/ana")
	require.Error(t, err)
}

func TestCreateRejectsEmptyActor(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Create(KindSessionOpened, map[string]any{"intent": "write"}, "")
	require.Error(t, err)
}

func TestCreateAcceptsIntegerNumbers(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Create(KindSessionClosed, map[string]any{"completed": true, "durationMinutes": 45}, "member/ana")
	require.NoError(t, err)
}

func TestEveryKindHasSchema(t *testing.T) {
	r := newRegistry(t)
	for _, k := range Kinds() {
		_, ok := r.schemas[k]
		require.True(t, ok, "kind %s has no schema", k)
	}
}
