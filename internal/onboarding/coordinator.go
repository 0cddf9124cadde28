package onboarding

import (
	"context"

	"letspay/internal/localstate"
	"letspay/internal/session"
	"letspay/internal/verification"

	"github.com/rs/zerolog"
)

// StatusSource is the backend poll half of the verification fact.
type StatusSource interface {
	Status(ctx context.Context, account string) (bool, error)
}

var _ StatusSource = (*verification.Checker)(nil)

// Coordinator derives the machine's signals from the session manager, the
// fact store, the verification sources and the ledger. It re-runs the whole
// derivation on every session replacement; in-flight reads for a previous
// session are simply discarded by the next Sync.
type Coordinator struct {
	machine  *Machine
	sessions *session.Manager
	status   StatusSource
	log      zerolog.Logger
}

func NewCoordinator(machine *Machine, sessions *session.Manager, status StatusSource, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		machine:  machine,
		sessions: sessions,
		status:   status,
		log:      logger.With().Str("component", "onboarding").Logger(),
	}
	sessions.Subscribe(func(ses *session.Session) {
		c.sync(context.Background(), ses)
	})
	return c
}

// Sync re-derives every signal for the current session.
func (c *Coordinator) Sync(ctx context.Context) State {
	return c.sync(ctx, c.sessions.Current())
}

func (c *Coordinator) sync(ctx context.Context, ses *session.Session) State {
	if ses == nil {
		return c.machine.Reset()
	}

	_, hasUsername := c.sessions.Username()
	verified := c.resolveVerified(ctx, ses)

	signedUp, err := ses.Ledger.SignedUp(ctx, ses.Account)
	if err != nil {
		c.log.Warn().Err(err).Msg("signedUp read failed")
		signedUp = c.machine.Signals().SignedUp
	}

	return c.machine.Set(Signals{
		Connected:   true,
		HasUsername: hasUsername,
		Verified:    verified,
		SignedUp:    signedUp,
	})
}

// resolveVerified applies the resolution order: local override first, backend
// poll second. The attestation-event producer feeds MarkVerified directly and
// never goes through here.
func (c *Coordinator) resolveVerified(ctx context.Context, ses *session.Session) bool {
	acct := ses.Account.Hex()
	facts := c.sessions.Facts()

	if v, ok, err := facts.Get(ctx, acct, localstate.KeyVerified); err == nil && ok && v == "1" {
		return true
	}

	if c.status == nil {
		return false
	}
	verified, err := c.status.Status(ctx, acct)
	if err != nil {
		// Treated as not-yet-verified; the event path is the recovery channel.
		c.log.Warn().Err(err).Str("account", acct).Msg("verification status check failed")
		return false
	}
	if verified {
		c.persistOverride(ctx, acct)
	}
	return verified
}

// MarkVerified records the sticky per-session override and moves the machine.
// Either producer may call it; repeat calls are no-ops.
func (c *Coordinator) MarkVerified(ctx context.Context) State {
	if ses := c.sessions.Current(); ses != nil {
		c.persistOverride(ctx, ses.Account.Hex())
	}
	return c.machine.MarkVerified()
}

// RefreshUsername re-evaluates only the username signal, used right after a
// successful registration without reconnecting.
func (c *Coordinator) RefreshUsername() State {
	_, has := c.sessions.Username()
	return c.machine.Apply(func(s *Signals) { s.HasUsername = has })
}

// RefreshSignup re-evaluates only the signup signal, used after the signup
// transaction lands.
func (c *Coordinator) RefreshSignup(ctx context.Context) State {
	ses := c.sessions.Current()
	if ses == nil {
		return c.machine.Reset()
	}
	signedUp, err := ses.Ledger.SignedUp(ctx, ses.Account)
	if err != nil {
		c.log.Warn().Err(err).Msg("signedUp read failed")
		return c.machine.State()
	}
	return c.machine.Apply(func(s *Signals) { s.SignedUp = signedUp })
}

func (c *Coordinator) persistOverride(ctx context.Context, account string) {
	if err := c.sessions.Facts().Set(ctx, account, localstate.KeyVerified, "1"); err != nil {
		c.log.Warn().Err(err).Msg("persist verified override failed")
	}
}
