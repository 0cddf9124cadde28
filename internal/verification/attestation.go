package verification

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"letspay/internal/contracts"
	"letspay/internal/faults"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// lookbackBlocks bounds the historical scan for an already-mined event.
const lookbackBlocks = 5000

// LogSource is the slice of the chain client the watcher needs. Satisfied by
// *ethclient.Client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// AttestationWatcher observes the UserVerified event on the attestation
// contract. It is the authoritative, low-latency signal right after the user
// completes the identity flow.
type AttestationWatcher struct {
	source   LogSource
	contract common.Address
	eventID  common.Hash
	log      zerolog.Logger
}

func NewAttestationWatcher(source LogSource, contract common.Address, logger zerolog.Logger) (*AttestationWatcher, error) {
	parsed, err := abi.JSON(strings.NewReader(contracts.AttestationABI))
	if err != nil {
		return nil, fmt.Errorf("parse attestation abi: %w", err)
	}
	event, ok := parsed.Events["UserVerified"]
	if !ok {
		return nil, fmt.Errorf("attestation abi has no UserVerified event")
	}
	return &AttestationWatcher{
		source:   source,
		contract: contract,
		eventID:  event.ID,
		log:      logger.With().Str("component", "attestation").Logger(),
	}, nil
}

// Ping probes the log source. The relay health handler uses it to report the
// attestation RPC as reachable or not.
func (w *AttestationWatcher) Ping(ctx context.Context) error {
	_, err := w.source.BlockNumber(ctx)
	return err
}

// Verified scans the recent event history for a UserVerified log keyed to
// account.
func (w *AttestationWatcher) Verified(ctx context.Context, account common.Address) (bool, error) {
	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		return false, faults.VerificationCheckFailed(err)
	}
	from := uint64(0)
	if head > lookbackBlocks {
		from = head - lookbackBlocks
	}

	logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.contract},
		Topics: [][]common.Hash{
			{w.eventID},
			{common.BytesToHash(account.Bytes())},
		},
	})
	if err != nil {
		return false, faults.VerificationCheckFailed(err)
	}
	return len(logs) > 0, nil
}

// Watch polls Verified until it fires, the context ends, or the deadline
// passes; onVerified runs at most once. Filter errors are logged and retried,
// never surfaced.
func (w *AttestationWatcher) Watch(ctx context.Context, account common.Address, interval time.Duration, onVerified func()) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := w.Verified(ctx, account)
		if err != nil {
			w.log.Warn().Err(err).Str("account", account.Hex()).Msg("attestation scan failed")
		} else if ok {
			onVerified()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
