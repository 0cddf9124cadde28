package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Provider is the injected signing bridge. A browser wallet, a hardware
// signer or a local key all fit behind it.
type Provider interface {
	// RequestAccounts prompts for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts lists already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// ChainID reports the chain the provider is currently on.
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchChain asks the provider to move to chainID. Providers that
	// cannot switch return an error.
	SwitchChain(ctx context.Context, chainID *big.Int) error
	// Transactor yields signing options bound to account and chainID.
	Transactor(ctx context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

// ChainIDSource is the slice of the RPC client the keyed provider needs.
type ChainIDSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// KeyedProvider signs with a local private key over a fixed RPC endpoint.
// Its chain is whatever the node is on; it cannot switch.
type KeyedProvider struct {
	key     *ecdsa.PrivateKey
	account common.Address
	source  ChainIDSource
}

func NewKeyedProvider(privateKeyHex string, source ChainIDSource) (*KeyedProvider, error) {
	hexKey := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeyedProvider{
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		source:  source,
	}, nil
}

func (p *KeyedProvider) RequestAccounts(_ context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *KeyedProvider) Accounts(_ context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *KeyedProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.source.ChainID(ctx)
}

func (p *KeyedProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	current, err := p.source.ChainID(ctx)
	if err != nil {
		return err
	}
	if current.Cmp(chainID) != 0 {
		return fmt.Errorf("node is on chain %s, cannot switch to %s", current, chainID)
	}
	return nil
}

func (p *KeyedProvider) Transactor(ctx context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	if account != p.account {
		return nil, fmt.Errorf("account %s is not held by this provider", account.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(p.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = 0 // let node estimate
	return opts, nil
}
