// Package escrow turns payment intents into ledger-valid escrow operations
// and keeps the derived credit and pending-escrow views fresh.
package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"letspay/internal/faults"
	"letspay/internal/ledger"
	"letspay/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Orchestrator submits escrow operations through the current session's
// ledger handle. Derived balances are caches of on-chain truth, refreshed
// after every mutating call; the ledger remains the sole source of truth.
type Orchestrator struct {
	sessions *session.Manager
	log      zerolog.Logger

	mu       sync.Mutex
	credit   *big.Int
	pending  []uint64
	inFlight map[uint64]bool
}

func NewOrchestrator(sessions *session.Manager, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		log:      logger.With().Str("component", "escrow").Logger(),
		credit:   big.NewInt(0),
		inFlight: make(map[uint64]bool),
	}
}

func (o *Orchestrator) active() (*session.Session, error) {
	ses := o.sessions.Current()
	if ses == nil {
		return nil, fmt.Errorf("not connected")
	}
	return ses, nil
}

// CreateEscrow parses the total, splits it across the participants and the
// implicit host, submits, waits for inclusion, then refreshes credit and
// pending in parallel. Returns the transaction hash for display.
func (o *Orchestrator) CreateEscrow(ctx context.Context, merchant string, participants []string, totalText string) (common.Hash, error) {
	ses, err := o.active()
	if err != nil {
		return common.Hash{}, err
	}
	if !common.IsHexAddress(merchant) {
		return common.Hash{}, fmt.Errorf("invalid merchant address %q", merchant)
	}
	if len(participants) == 0 {
		return common.Hash{}, fmt.Errorf("at least one participant is required")
	}
	addrs := make([]common.Address, 0, len(participants))
	for _, p := range participants {
		if !common.IsHexAddress(p) {
			return common.Hash{}, fmt.Errorf("invalid participant address %q", p)
		}
		addrs = append(addrs, common.HexToAddress(p))
	}

	total, err := ParseAmount(totalText)
	if err != nil {
		return common.Hash{}, err
	}
	shares, _ := SplitShares(total, len(addrs))

	tx, err := ses.Ledger.CreateEscrow(ctx, common.HexToAddress(merchant), addrs, shares, total)
	if err != nil {
		return common.Hash{}, faults.LedgerRejected("create escrow", err)
	}
	if err := tx.Wait(ctx); err != nil {
		return common.Hash{}, faults.LedgerRejected("create escrow", err)
	}

	o.refreshAfterWrite(ctx)
	return tx.Hash(), nil
}

// AcceptEscrow submits acceptance for one pending escrow. A second call for
// the same id while one is in flight is refused; different ids may proceed
// concurrently.
func (o *Orchestrator) AcceptEscrow(ctx context.Context, id uint64) (common.Hash, error) {
	ses, err := o.active()
	if err != nil {
		return common.Hash{}, err
	}

	o.mu.Lock()
	if o.inFlight[id] {
		o.mu.Unlock()
		return common.Hash{}, fmt.Errorf("accept for escrow %d already in flight", id)
	}
	o.inFlight[id] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inFlight, id)
		o.mu.Unlock()
	}()

	tx, err := ses.Ledger.Accept(ctx, id)
	if err != nil {
		return common.Hash{}, faults.LedgerRejected("accept escrow", err)
	}
	if err := tx.Wait(ctx); err != nil {
		return common.Hash{}, faults.LedgerRejected("accept escrow", err)
	}

	o.refreshAfterWrite(ctx)
	return tx.Hash(), nil
}

// Repay parses the amount, fails fast when the native balance cannot cover
// it, then submits the payable repayment and refreshes credit.
func (o *Orchestrator) Repay(ctx context.Context, amountText string) (common.Hash, error) {
	ses, err := o.active()
	if err != nil {
		return common.Hash{}, err
	}

	amount, err := ParseAmount(amountText)
	if err != nil {
		return common.Hash{}, err
	}

	balance, err := ses.Ledger.BalanceAt(ctx, ses.Account)
	if err != nil {
		// Preflight is best effort; the ledger rejects on its own.
		o.log.Warn().Err(err).Msg("balance preflight failed")
	} else if balance.Cmp(amount) < 0 {
		return common.Hash{}, faults.InsufficientBalance()
	}

	tx, err := ses.Ledger.RepayCredit(ctx, amount)
	if err != nil {
		return common.Hash{}, faults.LedgerRejected("repay credit", err)
	}
	if err := tx.Wait(ctx); err != nil {
		return common.Hash{}, faults.LedgerRejected("repay credit", err)
	}

	if _, err := o.RefreshCredit(ctx); err != nil {
		o.log.Warn().Err(err).Msg("credit refresh after repay failed")
	}
	return tx.Hash(), nil
}

// SignUp claims the initial credit allotment for the connected account.
func (o *Orchestrator) SignUp(ctx context.Context) (common.Hash, error) {
	ses, err := o.active()
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := ses.Ledger.SignUp(ctx)
	if err != nil {
		return common.Hash{}, faults.LedgerRejected("signup", err)
	}
	if err := tx.Wait(ctx); err != nil {
		return common.Hash{}, faults.LedgerRejected("signup", err)
	}
	if _, err := o.RefreshCredit(ctx); err != nil {
		o.log.Warn().Err(err).Msg("credit refresh after signup failed")
	}
	return tx.Hash(), nil
}

// RefreshCredit re-reads the credit balance. Idempotent and safe to repeat.
func (o *Orchestrator) RefreshCredit(ctx context.Context) (*big.Int, error) {
	ses, err := o.active()
	if err != nil {
		return nil, err
	}
	amount, err := ses.Ledger.Credit(ctx, ses.Account)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.credit = new(big.Int).Set(amount)
	o.mu.Unlock()
	return new(big.Int).Set(amount), nil
}

// RefreshPending re-reads the pending escrow id list.
func (o *Orchestrator) RefreshPending(ctx context.Context) ([]uint64, error) {
	ses, err := o.active()
	if err != nil {
		return nil, err
	}
	ids, err := ses.Ledger.PendingEscrowsFor(ctx, ses.Account)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.pending = append([]uint64{}, ids...)
	o.mu.Unlock()
	return ids, nil
}

// refreshAfterWrite issues both re-reads without waiting for each other and
// joins before returning. Failures are logged, never surfaced: stale data
// beats a broken caller.
func (o *Orchestrator) refreshAfterWrite(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		if _, err := o.RefreshCredit(ctx); err != nil {
			o.log.Warn().Err(err).Msg("credit refresh failed")
		}
		return nil
	})
	g.Go(func() error {
		if _, err := o.RefreshPending(ctx); err != nil {
			o.log.Warn().Err(err).Msg("pending refresh failed")
		}
		return nil
	})
	_ = g.Wait()
}

// PendingDetails resolves the full record for each cached pending id.
// Unresolvable ids are skipped and logged.
func (o *Orchestrator) PendingDetails(ctx context.Context) ([]ledger.EscrowDetail, error) {
	ses, err := o.active()
	if err != nil {
		return nil, err
	}
	ids := o.Pending()
	details := make([]ledger.EscrowDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := ses.Ledger.EscrowDetails(ctx, id)
		if err != nil {
			o.log.Warn().Err(err).Uint64("escrow", id).Msg("escrow detail fetch failed")
			continue
		}
		details = append(details, detail)
	}
	return details, nil
}

// Credit returns the last refreshed credit balance.
func (o *Orchestrator) Credit() *big.Int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return new(big.Int).Set(o.credit)
}

// Pending returns the last refreshed pending id list.
func (o *Orchestrator) Pending() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint64{}, o.pending...)
}
