// Package session owns the trusted connection to the signing provider. It
// guarantees exactly one live Session at a time, pinned to the required
// chain, and re-establishes it silently across restarts.
package session

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"letspay/internal/faults"
	"letspay/internal/ledger"
	"letspay/internal/localstate"
	"letspay/internal/registrar"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Session is a live, chain-pinned connection to one signing account. It is
// replaced, never mutated: in-flight operations holding the old value simply
// complete (or fail) against the orphaned handle.
type Session struct {
	Account common.Address
	ChainID *big.Int
	Ledger  ledger.Client
}

// LedgerFactory builds the contract client bound to one account's signer.
type LedgerFactory func(ctx context.Context, account common.Address, opts *bind.TransactOpts) (ledger.Client, error)

type Manager struct {
	provider      Provider
	requiredChain *big.Int
	newLedger     LedgerFactory
	names         *registrar.Client
	facts         localstate.Store
	log           zerolog.Logger

	mu             sync.Mutex
	current        *Session
	username       string
	usernamePrompt bool
	subs           []func(*Session)
}

type ManagerConfig struct {
	Provider      Provider
	RequiredChain *big.Int
	NewLedger     LedgerFactory
	Names         *registrar.Client
	Facts         localstate.Store
	Logger        zerolog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	facts := cfg.Facts
	if facts == nil {
		facts = localstate.NewMemoryStore()
	}
	return &Manager{
		provider:      cfg.Provider,
		requiredChain: cfg.RequiredChain,
		newLedger:     cfg.NewLedger,
		names:         cfg.Names,
		facts:         facts,
		log:           cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// Connect establishes a session on explicit user intent, prompting for
// account access and requesting a switch to the required chain. A declined
// switch leaves the manager disconnected.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	if m.provider == nil {
		return nil, faults.NoProvider()
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, faults.NoProvider()
	}

	if err := m.provider.SwitchChain(ctx, m.requiredChain); err != nil {
		return nil, faults.ChainSwitchRejected(err)
	}
	if err := m.verifyChain(ctx); err != nil {
		return nil, faults.ChainSwitchRejected(err)
	}

	ses, err := m.establish(ctx, accounts[0])
	if err != nil {
		return nil, err
	}
	if err := m.facts.Set(ctx, ses.Account.Hex(), localstate.KeyConnected, "1"); err != nil {
		m.log.Warn().Err(err).Msg("persist connected flag failed")
	}
	return ses, nil
}

// SilentReconnect re-establishes a session at startup without any prompt.
// Every failure here is swallowed: the user did not initiate this action.
func (m *Manager) SilentReconnect(ctx context.Context) {
	if m.provider == nil {
		return
	}

	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("silent reconnect: list accounts failed")
		return
	}
	if len(accounts) == 0 {
		return
	}

	if err := m.provider.SwitchChain(ctx, m.requiredChain); err != nil {
		m.log.Warn().Err(err).Msg("silent reconnect: chain switch failed")
	}
	// The switch may have been refused; a session must never exist on the
	// wrong chain.
	if err := m.verifyChain(ctx); err != nil {
		m.log.Warn().Err(err).Msg("silent reconnect: still on wrong chain")
		return
	}

	if _, err := m.establish(ctx, accounts[0]); err != nil {
		m.log.Warn().Err(err).Msg("silent reconnect failed")
	}
}

func (m *Manager) verifyChain(ctx context.Context) error {
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if chainID.Cmp(m.requiredChain) != 0 {
		return fmt.Errorf("provider on chain %s, require %s", chainID, m.requiredChain)
	}
	return nil
}

func (m *Manager) establish(ctx context.Context, account common.Address) (*Session, error) {
	opts, err := m.provider.Transactor(ctx, account, m.requiredChain)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	led, err := m.newLedger(ctx, account, opts)
	if err != nil {
		return nil, fmt.Errorf("build ledger client: %w", err)
	}
	ses := &Session{
		Account: account,
		ChainID: new(big.Int).Set(m.requiredChain),
		Ledger:  led,
	}
	// Subscribers read the username signal when notified, so it must already
	// belong to the new account before the session is published.
	m.loadUsername(ctx, account)
	m.replace(ses)
	m.log.Info().Str("account", account.Hex()).Msg("session established")
	return ses, nil
}

// loadUsername resolves the registrar record for account, preferring the
// local cache for a fast reload and re-validating against the registrar.
// Whatever a previous account left behind is dropped first.
func (m *Manager) loadUsername(ctx context.Context, account common.Address) {
	acct := account.Hex()

	m.mu.Lock()
	m.username = ""
	m.usernamePrompt = false
	m.mu.Unlock()

	if cached, ok, err := m.facts.Get(ctx, acct, localstate.KeyUsername); err == nil && ok && cached != "" {
		m.mu.Lock()
		m.username = cached
		m.usernamePrompt = false
		m.mu.Unlock()
	}

	if m.names == nil {
		return
	}

	owned, err := m.names.NamesOwnedBy(ctx, acct)
	if err != nil {
		// Cached value, if any, stays advisory.
		m.log.Warn().Err(err).Str("account", acct).Msg("registrar lookup failed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(owned) == 0 {
		m.username = ""
		m.usernamePrompt = true
		return
	}
	m.username = owned[0].Name
	m.usernamePrompt = false
	if err := m.facts.Set(ctx, acct, localstate.KeyUsername, m.username); err != nil {
		m.log.Warn().Err(err).Msg("cache username failed")
	}
}

// RegisterUsername claims label for the connected account and records it.
func (m *Manager) RegisterUsername(ctx context.Context, label string) (registrar.Name, error) {
	ses := m.Current()
	if ses == nil {
		return registrar.Name{}, fmt.Errorf("not connected")
	}
	if m.names == nil {
		return registrar.Name{}, faults.RegistrarUnavailable(fmt.Errorf("no registrar configured"))
	}

	name, err := m.names.Register(ctx, label, ses.Account.Hex())
	if err != nil {
		return registrar.Name{}, err
	}

	m.mu.Lock()
	m.username = name.Name
	m.usernamePrompt = false
	m.mu.Unlock()
	if err := m.facts.Set(ctx, ses.Account.Hex(), localstate.KeyUsername, name.Name); err != nil {
		m.log.Warn().Err(err).Msg("cache username failed")
	}
	return name, nil
}

// OnAccountsChanged handles the provider's account list changing. An empty
// list tears the session down and wipes every cached fact for the departed
// account; anything else re-runs silent reconnect semantics.
func (m *Manager) OnAccountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		m.teardown(ctx, true)
		return
	}
	m.SilentReconnect(ctx)
}

// OnChainChanged forces a full state reset. The signer handle is
// chain-specific and cannot be hot-swapped.
func (m *Manager) OnChainChanged(ctx context.Context) {
	m.teardown(ctx, false)
	m.SilentReconnect(ctx)
}

// Disconnect clears the local session and cached flags. Provider-side
// authorization cannot be revoked from here.
func (m *Manager) Disconnect(ctx context.Context) {
	m.teardown(ctx, true)
}

func (m *Manager) teardown(ctx context.Context, clearFacts bool) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.username = ""
	m.usernamePrompt = false
	subs := append([]func(*Session){}, m.subs...)
	m.mu.Unlock()

	if clearFacts && prev != nil {
		if err := m.facts.ClearAccount(ctx, prev.Account.Hex()); err != nil {
			m.log.Warn().Err(err).Msg("clear account facts failed")
		}
	}
	for _, fn := range subs {
		fn(nil)
	}
	m.log.Info().Msg("session cleared")
}

func (m *Manager) replace(ses *Session) {
	m.mu.Lock()
	m.current = ses
	subs := append([]func(*Session){}, m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ses)
	}
}

// Current returns the active session, or nil when disconnected.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) IsConnected() bool { return m.Current() != nil }

// Username returns the resolved name and whether one is on record.
func (m *Manager) Username() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username, m.username != ""
}

// NeedsUsername reports whether the registrar confirmed the account has no
// name yet.
func (m *Manager) NeedsUsername() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usernamePrompt
}

// Subscribe registers fn to run on every session replacement, including
// teardown (with nil).
func (m *Manager) Subscribe(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Facts exposes the account-scoped fact store shared with the onboarding
// coordinator.
func (m *Manager) Facts() localstate.Store { return m.facts }
