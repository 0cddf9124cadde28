package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tx is a submitted transaction handle. State is durable only after Wait
// returns nil.
type Tx interface {
	Hash() common.Hash
	Wait(ctx context.Context) error
}

// EscrowDetail mirrors the contract's escrowDetails view.
type EscrowDetail struct {
	ID           uint64
	Host         common.Address
	Merchant     common.Address
	Total        *big.Int
	Status       uint8
	Participants []common.Address
	Shares       []*big.Int
}

// Client abstracts the on-chain LetsPay interaction.
type Client interface {
	Credit(ctx context.Context, account common.Address) (*big.Int, error)
	SignedUp(ctx context.Context, account common.Address) (bool, error)
	PendingEscrowsFor(ctx context.Context, account common.Address) ([]uint64, error)
	EscrowDetails(ctx context.Context, id uint64) (EscrowDetail, error)
	// BalanceAt reads the account's native balance, used for repay preflight.
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)

	SignUp(ctx context.Context) (Tx, error)
	CreateEscrow(ctx context.Context, merchant common.Address, participants []common.Address, shares []*big.Int, total *big.Int) (Tx, error)
	Accept(ctx context.Context, id uint64) (Tx, error)
	RepayCredit(ctx context.Context, amount *big.Int) (Tx, error)
}

// HealthChecker is implemented by clients that can probe their RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
