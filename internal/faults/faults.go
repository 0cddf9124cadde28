// Package faults defines the error taxonomy shared by the session, escrow and
// onboarding packages. Every failure a caller can act on is a *Fault with a
// fixed Kind; errors.Is matching works on Kind so callers never string-match.
package faults

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindNoProvider means no signing provider is available in the
	// environment. Fatal to the attempted action, not to the process.
	KindNoProvider Kind = iota
	// KindChainSwitchRejected means the user declined the network switch.
	KindChainSwitchRejected
	// KindInvalidAmount is local input validation; never reaches the network.
	KindInvalidAmount
	// KindInsufficientBalance is the pre-flight spend check.
	KindInsufficientBalance
	// KindLedgerRejected wraps a failed contract submission or inclusion.
	KindLedgerRejected
	// KindRegistrarUnavailable covers registrar call failures, retriable.
	KindRegistrarUnavailable
	// KindVerificationCheckFailed is always swallowed by callers and treated
	// as "not yet verified".
	KindVerificationCheckFailed
)

func (k Kind) String() string {
	switch k {
	case KindNoProvider:
		return "no provider"
	case KindChainSwitchRejected:
		return "chain switch rejected"
	case KindInvalidAmount:
		return "invalid amount"
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindLedgerRejected:
		return "ledger call rejected"
	case KindRegistrarUnavailable:
		return "registrar unavailable"
	case KindVerificationCheckFailed:
		return "verification check failed"
	default:
		return "unknown fault"
	}
}

// Fault is the tagged error variant. Reason carries the human-readable detail
// surfaced to the UI; cause preserves the underlying error for logs.
type Fault struct {
	Kind   Kind
	Reason string
	cause  error
}

func (f *Fault) Error() string {
	if f.Reason != "" {
		return f.Kind.String() + ": " + f.Reason
	}
	return f.Kind.String()
}

func (f *Fault) Unwrap() error { return f.cause }

// Is makes errors.Is(err, &Fault{Kind: k}) match on Kind alone.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if !errors.As(target, &other) {
		return false
	}
	return f.Kind == other.Kind
}

// KindOf reports the Kind of err if it is (or wraps) a Fault.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

func NoProvider() error {
	return &Fault{Kind: KindNoProvider, Reason: "no compatible signing provider found"}
}

func ChainSwitchRejected(cause error) error {
	return &Fault{Kind: KindChainSwitchRejected, Reason: "network switch was declined", cause: cause}
}

func InvalidAmount(text string) error {
	return &Fault{Kind: KindInvalidAmount, Reason: fmt.Sprintf("amount %q is not a positive number", text)}
}

func InsufficientBalance() error {
	return &Fault{Kind: KindInsufficientBalance, Reason: "balance too low for this amount"}
}

// LedgerRejected extracts the most specific reason available from cause.
func LedgerRejected(action string, cause error) error {
	return &Fault{
		Kind:   KindLedgerRejected,
		Reason: action + ": " + RevertReason(cause),
		cause:  cause,
	}
}

func RegistrarUnavailable(cause error) error {
	reason := "registrar request failed"
	if cause != nil {
		reason = cause.Error()
	}
	return &Fault{Kind: KindRegistrarUnavailable, Reason: reason, cause: cause}
}

func VerificationCheckFailed(cause error) error {
	return &Fault{Kind: KindVerificationCheckFailed, Reason: "status check failed", cause: cause}
}
