package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"letspay/internal/config"
	"letspay/internal/registrar"
	"letspay/internal/server"
	"letspay/internal/verification"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	var dir registrar.Directory = registrar.NewMemoryDirectory()
	if cfg.Registrar.UpstreamURL != "" && cfg.Registrar.APIKey != "" {
		dir = registrar.NewNamespaceDirectory(cfg.Registrar.UpstreamURL, cfg.Registrar.APIKey, cfg.Registrar.ParentName)
	} else {
		logger.Warn().Msg("namespace upstream not configured, using in-memory registry")
	}

	var verifier server.VerificationSource
	if cfg.Deployment.Attestation.RPCURL != "" && cfg.Deployment.Contracts.LetsPaySelfAttest != "" {
		cli, err := ethclient.DialContext(context.Background(), cfg.Deployment.Attestation.RPCURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("attestation rpc dial error")
		}
		watcher, err := verification.NewAttestationWatcher(
			cli,
			common.HexToAddress(cfg.Deployment.Contracts.LetsPaySelfAttest),
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("attestation watcher error")
		}
		verifier = watcher
	} else {
		logger.Warn().Msg("attestation chain not configured, verification-status disabled")
	}

	apiServer := server.NewServer(cfg, dir, verifier, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Info().Err(err).Msg("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(ctx)
}
