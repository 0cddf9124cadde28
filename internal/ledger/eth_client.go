package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"letspay/internal/contracts"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// EthClient talks to the deployed LetsPay contract.
type EthClient struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	address   common.Address
	chainID   *big.Int
	account   common.Address
	transacts *bind.TransactOpts
	log       zerolog.Logger
}

type EthClientConfig struct {
	RPCURL          string
	ContractLetsPay string
	// Transactor signs write calls; nil yields a read-only client.
	Transactor *bind.TransactOpts
	Account    common.Address
	Logger     zerolog.Logger
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ContractLetsPay == "" {
		return nil, fmt.Errorf("letspay contract address is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	return NewEthClientWith(cli, chainID, cfg)
}

// NewEthClientWith builds a client over an already-dialled connection. The
// session layer uses this form so the chain id check happens before dialling
// code ever reaches here.
func NewEthClientWith(cli *ethclient.Client, chainID *big.Int, cfg EthClientConfig) (*EthClient, error) {
	parsedABI, err := abi.JSON(strings.NewReader(contracts.LetsPayABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractLetsPay)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	return &EthClient{
		client:    cli,
		contract:  bound,
		abi:       parsedABI,
		address:   address,
		chainID:   chainID,
		account:   cfg.Account,
		transacts: cfg.Transactor,
		log:       cfg.Logger.With().Str("component", "ledger").Logger(),
	}, nil
}

func (c *EthClient) ChainID() *big.Int { return c.chainID }

func (c *EthClient) Credit(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "credit", account); err != nil {
		return nil, fmt.Errorf("credit call: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("credit call: unexpected return type %T", out[0])
	}
	return amount, nil
}

func (c *EthClient) SignedUp(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "signedUp", account); err != nil {
		return false, fmt.Errorf("signedUp call: %w", err)
	}
	signedUp, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("signedUp call: unexpected return type %T", out[0])
	}
	return signedUp, nil
}

func (c *EthClient) PendingEscrowsFor(ctx context.Context, account common.Address) ([]uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPendingEscrowsFor", account); err != nil {
		return nil, fmt.Errorf("getPendingEscrowsFor call: %w", err)
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getPendingEscrowsFor call: unexpected return type %T", out[0])
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

func (c *EthClient) EscrowDetails(ctx context.Context, id uint64) (EscrowDetail, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "escrowDetails", new(big.Int).SetUint64(id)); err != nil {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: %w", err)
	}
	if len(out) != 6 {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: expected 6 outputs, got %d", len(out))
	}
	detail := EscrowDetail{ID: id}
	var ok bool
	if detail.Host, ok = out[0].(common.Address); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad host type %T", out[0])
	}
	if detail.Merchant, ok = out[1].(common.Address); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad merchant type %T", out[1])
	}
	if detail.Total, ok = out[2].(*big.Int); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad total type %T", out[2])
	}
	if detail.Status, ok = out[3].(uint8); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad status type %T", out[3])
	}
	if detail.Participants, ok = out[4].([]common.Address); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad participants type %T", out[4])
	}
	if detail.Shares, ok = out[5].([]*big.Int); !ok {
		return EscrowDetail{}, fmt.Errorf("escrowDetails call: bad shares type %T", out[5])
	}
	return detail, nil
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.client.BalanceAt(ctx, account, nil)
}

func (c *EthClient) SignUp(ctx context.Context) (Tx, error) {
	return c.transact(ctx, nil, "signup")
}

func (c *EthClient) CreateEscrow(ctx context.Context, merchant common.Address, participants []common.Address, shares []*big.Int, total *big.Int) (Tx, error) {
	if len(participants) != len(shares) {
		return nil, fmt.Errorf("participants and shares length mismatch: %d != %d", len(participants), len(shares))
	}
	return c.transact(ctx, nil, "createEscrow", merchant, participants, shares, total)
}

func (c *EthClient) Accept(ctx context.Context, id uint64) (Tx, error) {
	return c.transact(ctx, nil, "accept", new(big.Int).SetUint64(id))
}

func (c *EthClient) RepayCredit(ctx context.Context, amount *big.Int) (Tx, error) {
	return c.transact(ctx, amount, "repayCredit")
}

func (c *EthClient) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (Tx, error) {
	if c.transacts == nil {
		return nil, fmt.Errorf("client is read-only")
	}
	opts := *c.transacts
	opts.Context = ctx
	opts.Value = value

	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s tx: %w", method, err)
	}
	c.log.Debug().Str("method", method).Str("tx", tx.Hash().Hex()).Msg("transaction submitted")
	return &ethTx{tx: tx, client: c.client}, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

type ethTx struct {
	tx     *types.Transaction
	client *ethclient.Client
}

func (t *ethTx) Hash() common.Hash { return t.tx.Hash() }

// Wait polls until the transaction is mined or the context is cancelled.
func (t *ethTx) Wait(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, t.tx.Hash())
		if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", t.tx.Hash().Hex())
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
