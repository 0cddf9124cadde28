package session

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// StaticProvider is an in-memory provider for tests and local development.
// Its account list and chain are mutated directly to simulate wallet events.
type StaticProvider struct {
	mu         sync.Mutex
	authorized []common.Address
	chain      *big.Int
	// SwitchErr, when set, makes every SwitchChain attempt fail.
	SwitchErr error
}

func NewStaticProvider(chain *big.Int, accounts ...common.Address) *StaticProvider {
	return &StaticProvider{
		authorized: accounts,
		chain:      new(big.Int).Set(chain),
	}
}

func (p *StaticProvider) SetAccounts(accounts ...common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorized = accounts
}

func (p *StaticProvider) SetChain(chain *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = new(big.Int).Set(chain)
}

func (p *StaticProvider) RequestAccounts(_ context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address{}, p.authorized...), nil
}

func (p *StaticProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return p.RequestAccounts(ctx)
}

func (p *StaticProvider) ChainID(_ context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.chain), nil
}

func (p *StaticProvider) SwitchChain(_ context.Context, chainID *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SwitchErr != nil {
		return p.SwitchErr
	}
	p.chain = new(big.Int).Set(chainID)
	return nil
}

func (p *StaticProvider) Transactor(ctx context.Context, account common.Address, _ *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account, Context: ctx}, nil
}
