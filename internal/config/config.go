package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DeploymentConfig represents deployments.json: the chain-pinned facts the
// whole core derives addresses from.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		LetsPay           string `json:"LetsPay"`
		LetsPaySelfAttest string `json:"LetsPaySelfAttest"`
	} `json:"contracts"`
	Attestation struct {
		ChainID int64  `json:"chainId"`
		RPCURL  string `json:"rpcUrl"`
	} `json:"attestation"`
}

// AppConfig ties together deployment info and environment-driven settings.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Registrar  RegistrarConfig
	Retry      RetryConfig
}

type ServiceConfig struct {
	HTTPPort            int
	VerificationBaseURL string
	LocalStatePath      string
	PostgresDSN         string
}

type ChainConfig struct {
	RPCURL     string
	PrivateKey string
}

type RegistrarConfig struct {
	BaseURL     string // relay endpoint the client core talks to
	UpstreamURL string // namespace offchain API the relay talks to
	APIKey      string
	ParentName  string
}

type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier int
}

const defaultDeploymentsPath = "deployments.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)

	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:            envOrInt("API_HTTP_PORT", 3000),
		VerificationBaseURL: envOr("VERIFICATION_BASE_URL", ""),
		LocalStatePath:      envOr("LOCAL_STATE_PATH", filepath.Join(os.TempDir(), "letspay-state.json")),
		PostgresDSN:         envOr("POSTGRES_DSN", ""),
	}

	chainCfg := ChainConfig{
		RPCURL:     envOr("CHAIN_RPC_URL", ""),
		PrivateKey: envOr("CHAIN_PRIVATE_KEY", ""),
	}

	registrarCfg := RegistrarConfig{
		BaseURL:     envOr("REGISTRAR_BASE_URL", ""),
		UpstreamURL: envOr("NAMESPACE_API_URL", ""),
		APIKey:      envOr("NAMESPACE_API_KEY", ""),
		ParentName:  envOr("PARENT_NAME", "letspay.eth"),
	}

	retryCfg := RetryConfig{
		MaxAttempts:       envOrInt("RETRY_MAX_ATTEMPTS", 3),
		InitialBackoff:    time.Duration(envOrInt("RETRY_INITIAL_BACKOFF_MS", 500)) * time.Millisecond,
		MaxBackoff:        time.Duration(envOrInt("RETRY_MAX_BACKOFF_MS", 5000)) * time.Millisecond,
		BackoffMultiplier: envOrInt("RETRY_BACKOFF_MULTIPLIER", 2),
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Registrar:  registrarCfg,
		Retry:      retryCfg,
	}, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
