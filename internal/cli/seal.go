package cli

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AlexZinkM/near-linkdrop/internal/config"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/internal/logging"
	"github.com/AlexZinkM/near-linkdrop/linkdrop"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSealCommand(g *globalFlags) *cobra.Command {
	return newSealCommandWithPassword(g, confirmPassword)
}

// newSealCommandWithPassword lets tests replace the terminal prompt
func newSealCommandWithPassword(g *globalFlags, password func() ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <account-id>",
		Short: "Encrypt a plaintext credential of the credentials directory",
		Long: `Encrypt <credentials dir>/<network>/<account-id>.json with a password and
write it as <account-id>.sealed.json. The plaintext file is kept; the sealed
file is used once the plaintext one is removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pw, err := password()
			if err != nil {
				return err
			}
			defer clear(pw) // Always clear password from memory

			keys := crypto.NewKeyStore(cfg.CredentialsDir, cfg.NetworkID, nil)
			path, err := linkdrop.SealAccount(keys, cfg.NetworkID, args[0], pw)
			if err != nil {
				return err
			}

			logger.Info("sealed credential", zap.String("account", args[0]), zap.String("path", path))
			logger.Warn("plaintext credential is still present, remove it to use the sealed one")
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func confirmPassword() ([]byte, error) {
	first, err := config.PromptForPassword("New password: ")
	if err != nil {
		return nil, err
	}
	second, err := config.PromptForPassword("Repeat password: ")
	if err != nil {
		clear(first)
		return nil, err
	}
	defer clear(second)
	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}
