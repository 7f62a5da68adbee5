package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlexZinkM/near-linkdrop/internal/common"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

const defaultCredentialsDir = ".near-credentials"

// FundingFailurePolicy decides what happens to the claim link when the funding call fails
type FundingFailurePolicy string

const (
	// FundingFailureAbort fails the run without emitting a link
	FundingFailureAbort FundingFailurePolicy = "abort"

	// FundingFailureFlag emits the link marked as unfunded
	FundingFailureFlag FundingFailurePolicy = "flag"
)

// Config contains all configuration parameters for the application.
// It is built once by Load and never mutated afterwards.
type Config struct {
	NetworkID      string        `envconfig:"NEAR_NETWORK" default:"testnet"`
	NodeURL        string        `envconfig:"NEAR_NODE_URL"`
	WalletURL      string        `envconfig:"NEAR_WALLET_URL"`
	HelperURL      string        `envconfig:"NEAR_HELPER_URL"`
	ExplorerURL    string        `envconfig:"NEAR_EXPLORER_URL"`
	CredentialsDir string        `envconfig:"NEAR_CREDENTIALS_DIR"`
	RPCTimeout     time.Duration `envconfig:"NEAR_RPC_TIMEOUT" default:"60s"`

	ContractID       string               `envconfig:"LINKDROP_CONTRACT_ID"`
	FundingAccountID string               `envconfig:"LINKDROP_FUNDING_ACCOUNT_ID"`
	Amount           string               `envconfig:"LINKDROP_AMOUNT" default:"1"`
	Gas              uint64               `envconfig:"LINKDROP_GAS"`
	OnFundingFailure FundingFailurePolicy `envconfig:"LINKDROP_ON_FUNDING_FAILURE" default:"abort"`
	SkipInit         bool                 `envconfig:"LINKDROP_SKIP_INIT" default:"false"`
	VerifyFunding    bool                 `envconfig:"LINKDROP_VERIFY_FUNDING" default:"false"`
	QRPath           string               `envconfig:"LINKDROP_QR_PATH"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// NetworkConfig is the connection part of Config
type NetworkConfig struct {
	NetworkID      string
	NodeURL        string
	WalletURL      string
	HelperURL      string
	ExplorerURL    string
	CredentialsDir string
	RPCTimeout     time.Duration
}

type networkPreset struct {
	nodeURL, walletURL, helperURL, explorerURL string
}

var presets = map[string]networkPreset{
	"testnet": {
		nodeURL:     "https://rpc.testnet.near.org",
		walletURL:   "https://wallet.testnet.near.org",
		helperURL:   "https://helper.testnet.near.org",
		explorerURL: "https://explorer.testnet.near.org",
	},
	"mainnet": {
		nodeURL:     "https://rpc.mainnet.near.org",
		walletURL:   "https://wallet.near.org",
		helperURL:   "https://helper.mainnet.near.org",
		explorerURL: "https://explorer.near.org",
	},
}

// Load reads an optional .env file, then configuration from environment variables,
// and fills network presets. Callers run Validate before issuing.
func Load(envFiles ...string) (*Config, error) {
	return load("", envFiles)
}

// LoadForNetwork is Load with the network id taken from network instead of NEAR_NETWORK
func LoadForNetwork(network string, envFiles ...string) (*Config, error) {
	return load(network, envFiles)
}

func load(network string, envFiles []string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		// existing environment variables win over the file
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if network != "" {
		cfg.NetworkID = network
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Gas == 0 {
		c.Gas = common.DefaultGas
	}
	if p, ok := presets[c.NetworkID]; ok {
		if c.NodeURL == "" {
			c.NodeURL = p.nodeURL
		}
		if c.WalletURL == "" {
			c.WalletURL = p.walletURL
		}
		if c.HelperURL == "" {
			c.HelperURL = p.helperURL
		}
		if c.ExplorerURL == "" {
			c.ExplorerURL = p.explorerURL
		}
	}
	c.WalletURL = strings.TrimRight(c.WalletURL, "/")

	if c.CredentialsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		c.CredentialsDir = filepath.Join(home, defaultCredentialsDir)
	}
	return nil
}

// Validate checks the values needed to issue a linkdrop
func (c *Config) Validate() error {
	var errs []error
	if c.NetworkID == "" {
		errs = append(errs, errors.New("NEAR_NETWORK is empty"))
	}
	if c.NodeURL == "" {
		errs = append(errs, fmt.Errorf("NEAR_NODE_URL is required for network %q", c.NetworkID))
	}
	if c.WalletURL == "" {
		errs = append(errs, fmt.Errorf("NEAR_WALLET_URL is required for network %q", c.NetworkID))
	}
	if c.ContractID == "" {
		errs = append(errs, errors.New("LINKDROP_CONTRACT_ID is required"))
	} else if !crypto.ValidAccountID(c.ContractID) {
		errs = append(errs, fmt.Errorf("LINKDROP_CONTRACT_ID %q is not a valid account id", c.ContractID))
	}
	if c.FundingAccountID == "" {
		errs = append(errs, errors.New("LINKDROP_FUNDING_ACCOUNT_ID is required"))
	} else if !crypto.ValidAccountID(c.FundingAccountID) {
		errs = append(errs, fmt.Errorf("LINKDROP_FUNDING_ACCOUNT_ID %q is not a valid account id", c.FundingAccountID))
	}
	if _, err := common.NEARToYocto(c.Amount); err != nil {
		errs = append(errs, fmt.Errorf("LINKDROP_AMOUNT: %w", err))
	}
	if c.Gas == 0 {
		errs = append(errs, errors.New("LINKDROP_GAS must be positive"))
	}
	switch c.OnFundingFailure {
	case FundingFailureAbort, FundingFailureFlag:
	default:
		errs = append(errs, fmt.Errorf("LINKDROP_ON_FUNDING_FAILURE must be %q or %q", FundingFailureAbort, FundingFailureFlag))
	}
	return errors.Join(errs...)
}

// Network returns the immutable connection settings
func (c *Config) Network() NetworkConfig {
	return NetworkConfig{
		NetworkID:      c.NetworkID,
		NodeURL:        c.NodeURL,
		WalletURL:      c.WalletURL,
		HelperURL:      c.HelperURL,
		ExplorerURL:    c.ExplorerURL,
		CredentialsDir: c.CredentialsDir,
		RPCTimeout:     c.RPCTimeout,
	}
}

// PromptForPassword prompts the user for the credentials password in the terminal.
// The password is read without echoing (hidden input).
// Caller must zero the returned slice after use for security.
func PromptForPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}
