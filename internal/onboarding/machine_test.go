package onboarding

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateTotality(t *testing.T) {
	known := map[State]bool{
		Disconnected:         true,
		AwaitingUsername:     true,
		AwaitingVerification: true,
		AwaitingSignup:       true,
		Ready:                true,
	}
	for i := 0; i < 16; i++ {
		s := Signals{
			Connected:   i&1 != 0,
			HasUsername: i&2 != 0,
			Verified:    i&4 != 0,
			SignedUp:    i&8 != 0,
		}
		state := Evaluate(s)
		assert.True(t, known[state], "signals %+v mapped to unknown state %v", s, state)
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	cases := []struct {
		signals Signals
		want    State
	}{
		{Signals{}, Disconnected},
		// Disconnected wins regardless of the other signals.
		{Signals{HasUsername: true, Verified: true, SignedUp: true}, Disconnected},
		{Signals{Connected: true}, AwaitingUsername},
		{Signals{Connected: true, HasUsername: true}, AwaitingVerification},
		{Signals{Connected: true, HasUsername: true, Verified: true}, AwaitingSignup},
		{Signals{Connected: true, HasUsername: true, Verified: true, SignedUp: true}, Ready},
		// A later signal cannot skip an earlier gate.
		{Signals{Connected: true, Verified: true, SignedUp: true}, AwaitingUsername},
		{Signals{Connected: true, HasUsername: true, SignedUp: true}, AwaitingVerification},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Evaluate(tc.signals), "signals %+v", tc.signals)
	}
}

func TestMachineNotifiesOnlyOnChange(t *testing.T) {
	m := NewMachine(zerolog.Nop())

	var fired []State
	m.Subscribe(func(s State) { fired = append(fired, s) })

	m.Set(Signals{Connected: true})
	m.Set(Signals{Connected: true}) // same derived state, no notification
	m.Set(Signals{Connected: true, HasUsername: true})

	require.Equal(t, []State{AwaitingUsername, AwaitingVerification}, fired)
}

func TestMarkVerifiedIdempotent(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	m.Set(Signals{Connected: true, HasUsername: true})

	var fired int
	m.Subscribe(func(State) { fired++ })

	first := m.MarkVerified()
	second := m.MarkVerified()

	assert.Equal(t, AwaitingSignup, first)
	assert.Equal(t, AwaitingSignup, second)
	assert.Equal(t, 1, fired)
}

func TestResetRegressesToDisconnected(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	m.Set(Signals{Connected: true, HasUsername: true, Verified: true, SignedUp: true})
	require.Equal(t, Ready, m.State())

	assert.Equal(t, Disconnected, m.Reset())
	assert.Equal(t, Signals{}, m.Signals())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "unknown", State(99).String())
}
