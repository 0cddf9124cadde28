package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// FakeClient is an in-memory ledger used by tests and local development. It
// keeps just enough accounting to exercise the orchestration layer: credit
// balances, signup flags and pending escrow ids.
type FakeClient struct {
	mu       sync.Mutex
	account  common.Address
	credits  map[common.Address]*big.Int
	signedUp map[common.Address]bool
	balances map[common.Address]*big.Int
	pending  map[common.Address][]uint64
	escrows  map[uint64]EscrowDetail
	nextID   uint64

	// Errs scripts per-method failures, keyed by method name.
	Errs map[string]error
}

func NewFakeClient(account common.Address) *FakeClient {
	return &FakeClient{
		account:  account,
		credits:  make(map[common.Address]*big.Int),
		signedUp: make(map[common.Address]bool),
		balances: make(map[common.Address]*big.Int),
		pending:  make(map[common.Address][]uint64),
		escrows:  make(map[uint64]EscrowDetail),
		nextID:   1,
	}
}

func (f *FakeClient) SetCredit(account common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[account] = new(big.Int).Set(amount)
}

func (f *FakeClient) SetBalance(account common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = new(big.Int).Set(amount)
}

func (f *FakeClient) AddPending(account common.Address, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[account] = append(f.pending[account], id)
}

func (f *FakeClient) SetSignedUp(account common.Address, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedUp[account] = ok
}

func (f *FakeClient) scripted(method string) error {
	if f.Errs == nil {
		return nil
	}
	return f.Errs[method]
}

func (f *FakeClient) Credit(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("credit"); err != nil {
		return nil, err
	}
	if c, ok := f.credits[account]; ok {
		return new(big.Int).Set(c), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) SignedUp(_ context.Context, account common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("signedUp"); err != nil {
		return false, err
	}
	return f.signedUp[account], nil
}

func (f *FakeClient) PendingEscrowsFor(_ context.Context, account common.Address) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("getPendingEscrowsFor"); err != nil {
		return nil, err
	}
	out := make([]uint64, len(f.pending[account]))
	copy(out, f.pending[account])
	return out, nil
}

func (f *FakeClient) EscrowDetails(_ context.Context, id uint64) (EscrowDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.escrows[id]
	if !ok {
		return EscrowDetail{}, fmt.Errorf("escrow %d not found", id)
	}
	return detail, nil
}

func (f *FakeClient) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) SignUp(_ context.Context) (Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("signup"); err != nil {
		return nil, err
	}
	f.signedUp[f.account] = true
	if _, ok := f.credits[f.account]; !ok {
		f.credits[f.account] = big.NewInt(0)
	}
	return fakeTx("signup:" + f.account.Hex()), nil
}

func (f *FakeClient) CreateEscrow(_ context.Context, merchant common.Address, participants []common.Address, shares []*big.Int, total *big.Int) (Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("createEscrow"); err != nil {
		return nil, err
	}
	if len(participants) != len(shares) {
		return nil, fmt.Errorf("participants and shares length mismatch")
	}
	id := f.nextID
	f.nextID++
	f.escrows[id] = EscrowDetail{
		ID:           id,
		Host:         f.account,
		Merchant:     merchant,
		Total:        new(big.Int).Set(total),
		Participants: participants,
		Shares:       shares,
	}
	for _, p := range participants {
		f.pending[p] = append(f.pending[p], id)
	}
	return fakeTx(fmt.Sprintf("escrow:%d", id)), nil
}

func (f *FakeClient) Accept(_ context.Context, id uint64) (Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("accept"); err != nil {
		return nil, err
	}
	ids := f.pending[f.account]
	for i, pid := range ids {
		if pid == id {
			f.pending[f.account] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return fakeTx(fmt.Sprintf("accept:%d", id)), nil
}

func (f *FakeClient) RepayCredit(_ context.Context, amount *big.Int) (Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("repayCredit"); err != nil {
		return nil, err
	}
	if _, ok := f.credits[f.account]; !ok {
		f.credits[f.account] = big.NewInt(0)
	}
	f.credits[f.account] = new(big.Int).Add(f.credits[f.account], amount)
	return fakeTx("repay:" + amount.String()), nil
}

// fakeTx derives a deterministic hash from the payload, mined immediately.
func fakeTx(payload string) Tx {
	sum := sha256.Sum256([]byte(payload))
	return &minedTx{hash: common.BytesToHash(sum[:])}
}

type minedTx struct {
	hash common.Hash
}

func (t *minedTx) Hash() common.Hash            { return t.hash }
func (t *minedTx) Wait(_ context.Context) error { return nil }
