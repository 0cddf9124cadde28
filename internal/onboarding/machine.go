// Package onboarding maps the independent account signals into exactly one
// UI state, and owns the cross-source refresh sequencing that feeds them.
package onboarding

import (
	"sync"

	"github.com/rs/zerolog"
)

type State int

const (
	Disconnected State = iota
	AwaitingUsername
	AwaitingVerification
	AwaitingSignup
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingUsername:
		return "awaiting_username"
	case AwaitingVerification:
		return "awaiting_verification"
	case AwaitingSignup:
		return "awaiting_signup"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Signals are the four independent inputs to the machine.
type Signals struct {
	Connected   bool
	HasUsername bool
	Verified    bool
	SignedUp    bool
}

// Evaluate is total: every signal combination maps to exactly one state, in
// strict precedence order.
func Evaluate(s Signals) State {
	switch {
	case !s.Connected:
		return Disconnected
	case !s.HasUsername:
		return AwaitingUsername
	case !s.Verified:
		return AwaitingVerification
	case !s.SignedUp:
		return AwaitingSignup
	default:
		return Ready
	}
}

// Machine holds the current signals and re-evaluates on every change.
// Subscribers are notified only when the derived state actually moves.
type Machine struct {
	mu      sync.Mutex
	signals Signals
	state   State
	subs    []func(State)
	log     zerolog.Logger
}

func NewMachine(logger zerolog.Logger) *Machine {
	return &Machine{
		state: Disconnected,
		log:   logger.With().Str("component", "onboarding").Logger(),
	}
}

// Apply mutates the signals and re-evaluates, returning the new state.
func (m *Machine) Apply(mutate func(*Signals)) State {
	m.mu.Lock()
	mutate(&m.signals)
	next := Evaluate(m.signals)
	changed := next != m.state
	m.state = next
	var subs []func(State)
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if changed {
		m.log.Info().Str("state", next.String()).Msg("onboarding state changed")
		for _, fn := range subs {
			fn(next)
		}
	}
	return next
}

// Set replaces all signals at once.
func (m *Machine) Set(signals Signals) State {
	return m.Apply(func(s *Signals) { *s = signals })
}

// MarkVerified is the idempotent transition both verification producers feed.
// Firing twice is a no-op.
func (m *Machine) MarkVerified() State {
	return m.Apply(func(s *Signals) { s.Verified = true })
}

// Reset returns the machine to Disconnected with all signals cleared.
func (m *Machine) Reset() State {
	return m.Set(Signals{})
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Signals() Signals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals
}

// Subscribe registers fn to run on every state change.
func (m *Machine) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}
