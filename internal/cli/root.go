// Package cli wires configuration, logging and the linkdrop package into the
// linkdrop command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AlexZinkM/near-linkdrop/internal/config"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUnfunded = 2
)

// errUnfunded marks a run that printed a link whose key could not be funded
var errUnfunded = errors.New("linkdrop issued but not funded")

// globalFlags override the environment for every subcommand
type globalFlags struct {
	envFile   string
	network   string
	nodeURL   string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the command tree. Running it without a subcommand issues one linkdrop.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	issue := newIssueCommand(g)

	root := &cobra.Command{
		Use:   "linkdrop",
		Short: "Issue NEAR linkdrops",
		Long: `Issue a NEAR linkdrop: make sure the linkdrop contract is initialized,
generate a one-time key, fund it through the contract's send method and print
the wallet claim link. Only the link is written to stdout.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          issue.RunE,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", "", "read environment from this file instead of ./.env")
	pf.StringVar(&g.network, "network", "", "network id (overrides NEAR_NETWORK)")
	pf.StringVar(&g.nodeURL, "node-url", "", "RPC node URL (overrides NEAR_NODE_URL)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&g.logFormat, "log-format", "", "console or json (overrides LOG_FORMAT)")

	// the root runs issue itself, so it needs the same flags
	root.Flags().AddFlagSet(issue.Flags())

	root.AddCommand(issue, newKeyBalanceCommand(g), newSealCommand(g))
	return root
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUnfunded):
		return ExitUnfunded
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}

// loadConfig reads the environment and applies the global flag overrides
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var envFiles []string
	if g.envFile != "" {
		envFiles = append(envFiles, g.envFile)
	}
	if g.network != "" {
		// presets are resolved inside Load, so the network has to be known up front
		cfg, err := config.LoadForNetwork(g.network, envFiles...)
		if err != nil {
			return nil, err
		}
		return g.override(cfg), nil
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	return g.override(cfg), nil
}

func (g *globalFlags) override(cfg *config.Config) *config.Config {
	if g.nodeURL != "" {
		cfg.NodeURL = g.nodeURL
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	return cfg
}
