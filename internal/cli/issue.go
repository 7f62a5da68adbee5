package cli

import (
	"fmt"

	"github.com/AlexZinkM/near-linkdrop/internal/config"
	"github.com/AlexZinkM/near-linkdrop/internal/logging"
	"github.com/AlexZinkM/near-linkdrop/linkdrop"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type issueFlags struct {
	contractID       string
	fundingAccountID string
	amount           string
	onFundingFailure string
	skipInit         bool
	verify           bool
	qrPath           string
}

func newIssueCommand(g *globalFlags) *cobra.Command {
	f := &issueFlags{}
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue one linkdrop and print its claim link",
		Long: `Initialize the linkdrop contract (an already initialized contract is fine),
generate a fresh ed25519 key, fund it through the contract and print
<wallet>/linkdrop/<contract>/<private key> on stdout.

Exit status is 0 when the key is funded, 2 when the link was printed with the
UNFUNDED tag (on-funding-failure=flag) and 1 on any other failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return runIssue(cmd, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.contractID, "contract", "", "linkdrop contract account (overrides LINKDROP_CONTRACT_ID)")
	fl.StringVar(&f.fundingAccountID, "funding-account", "", "account paying for the linkdrop (overrides LINKDROP_FUNDING_ACCOUNT_ID)")
	fl.StringVar(&f.amount, "amount", "", "NEAR to attach to the key (overrides LINKDROP_AMOUNT)")
	fl.StringVar(&f.onFundingFailure, "on-funding-failure", "", "abort or flag (overrides LINKDROP_ON_FUNDING_FAILURE)")
	fl.BoolVar(&f.skipInit, "skip-init", false, "do not call new_default_meta")
	fl.BoolVar(&f.verify, "verify", false, "check the key balance on the contract after funding")
	fl.StringVar(&f.qrPath, "qr", "", "also write the claim link as a PNG QR code to this path")
	return cmd
}

// apply overrides cfg with the flags set on the command line
func (f *issueFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("contract") {
		cfg.ContractID = f.contractID
	}
	if fl.Changed("funding-account") {
		cfg.FundingAccountID = f.fundingAccountID
	}
	if fl.Changed("amount") {
		cfg.Amount = f.amount
	}
	if fl.Changed("on-funding-failure") {
		cfg.OnFundingFailure = config.FundingFailurePolicy(f.onFundingFailure)
	}
	if fl.Changed("skip-init") {
		cfg.SkipInit = f.skipInit
	}
	if fl.Changed("verify") {
		cfg.VerifyFunding = f.verify
	}
	if fl.Changed("qr") {
		cfg.QRPath = f.qrPath
	}
}

func runIssue(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// amount and policy are checked before any request reaches the node
	opts := linkdrop.OptionsFromConfig(cfg)
	if err := opts.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	session, err := linkdrop.Bootstrap(ctx, cfg.Network(), cfg.ContractID, cfg.FundingAccountID, passwordPrompt(cfg.NetworkID), logger)
	if err != nil {
		return err
	}
	defer session.Close()

	issuer, err := linkdrop.NewIssuer(session.ContractAccount, session.SendingAccount, opts, logger)
	if err != nil {
		return err
	}

	drop, err := issuer.Issue(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if drop.Funded {
		fmt.Fprintln(out, drop.ClaimURL)
	} else {
		fmt.Fprintln(out, "UNFUNDED "+drop.ClaimURL)
	}

	if cfg.QRPath != "" {
		if err := linkdrop.WriteQRCode(cfg.QRPath, drop.ClaimURL); err != nil {
			logger.Warn("failed to write QR code", zap.String("path", cfg.QRPath), zap.Error(err))
		} else {
			logger.Info("wrote QR code", zap.String("path", cfg.QRPath))
		}
	}

	fields := []zap.Field{zap.String("pubKey", drop.PublicKey), zap.Bool("funded", drop.Funded)}
	if drop.FundingTxHash != "" && cfg.ExplorerURL != "" {
		fields = append(fields, zap.String("transaction", cfg.ExplorerURL+"/transactions/"+drop.FundingTxHash))
	}
	logger.Info("linkdrop issued", fields...)

	if !drop.Funded {
		return fmt.Errorf("%w: %s", errUnfunded, drop.FundingFailure)
	}
	return nil
}

func passwordPrompt(network string) func() ([]byte, error) {
	return func() ([]byte, error) {
		return config.PromptForPassword(fmt.Sprintf("Password for sealed %s credentials: ", network))
	}
}
