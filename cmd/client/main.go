// The client daemon drives the payment core over a locally held key: it
// connects a session, walks the onboarding signals and keeps the credit and
// pending-escrow views fresh until interrupted.
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"letspay/internal/config"
	"letspay/internal/escrow"
	"letspay/internal/ledger"
	"letspay/internal/localstate"
	"letspay/internal/onboarding"
	"letspay/internal/registrar"
	"letspay/internal/session"
	"letspay/internal/verification"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const refreshInterval = 30 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if cfg.Chain.RPCURL == "" || cfg.Chain.PrivateKey == "" {
		logger.Fatal().Msg("CHAIN_RPC_URL and CHAIN_PRIVATE_KEY are required")
	}

	rpc, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("chain rpc dial error")
	}
	provider, err := session.NewKeyedProvider(cfg.Chain.PrivateKey, rpc)
	if err != nil {
		logger.Fatal().Err(err).Msg("signer error")
	}
	facts, err := localstate.Open(ctx, cfg.Service)
	if err != nil {
		logger.Fatal().Err(err).Msg("state store error")
	}

	var names *registrar.Client
	if cfg.Registrar.BaseURL != "" {
		names = registrar.NewClient(cfg.Registrar.BaseURL, logger)
	} else {
		logger.Warn().Msg("name relay not configured, username lookups disabled")
	}

	requiredChain := big.NewInt(cfg.Deployment.ChainID)
	manager := session.NewManager(session.ManagerConfig{
		Provider:      provider,
		RequiredChain: requiredChain,
		NewLedger: func(_ context.Context, account common.Address, opts *bind.TransactOpts) (ledger.Client, error) {
			return ledger.NewEthClientWith(rpc, requiredChain, ledger.EthClientConfig{
				ContractLetsPay: cfg.Deployment.Contracts.LetsPay,
				Transactor:      opts,
				Account:         account,
				Logger:          logger,
			})
		},
		Names:  names,
		Facts:  facts,
		Logger: logger,
	})

	machine := onboarding.NewMachine(logger)
	var status onboarding.StatusSource
	if cfg.Service.VerificationBaseURL != "" {
		status = verification.NewChecker(cfg.Service.VerificationBaseURL, logger)
	}
	coord := onboarding.NewCoordinator(machine, manager, status, logger)
	orchestrator := escrow.NewOrchestrator(manager, logger)

	manager.SilentReconnect(ctx)
	if !manager.IsConnected() {
		if _, err := manager.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("connect failed")
		}
	}

	state := coord.Sync(ctx)
	logger.Info().Str("state", state.String()).Msg("onboarding state")

	if state == onboarding.AwaitingVerification &&
		cfg.Deployment.Attestation.RPCURL != "" && cfg.Deployment.Contracts.LetsPaySelfAttest != "" {
		attRPC, err := ethclient.DialContext(ctx, cfg.Deployment.Attestation.RPCURL)
		if err != nil {
			logger.Warn().Err(err).Msg("attestation rpc dial failed")
		} else if watcher, err := verification.NewAttestationWatcher(
			attRPC, common.HexToAddress(cfg.Deployment.Contracts.LetsPaySelfAttest), logger); err != nil {
			logger.Warn().Err(err).Msg("attestation watcher error")
		} else {
			account := manager.Current().Account
			go watcher.Watch(ctx, account, 5*time.Second, func() {
				coord.MarkVerified(ctx)
			})
		}
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			manager.Disconnect(context.Background())
			return
		case <-ticker.C:
			if _, err := orchestrator.RefreshCredit(ctx); err != nil {
				logger.Warn().Err(err).Msg("credit refresh failed")
			}
			if _, err := orchestrator.RefreshPending(ctx); err != nil {
				logger.Warn().Err(err).Msg("pending refresh failed")
			}
			coord.Sync(ctx)
		}
	}
}
