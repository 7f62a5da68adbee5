package cli

import (
	"fmt"

	"github.com/AlexZinkM/near-linkdrop/internal/client"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/linkdrop"

	"github.com/spf13/cobra"
)

func newKeyBalanceCommand(g *globalFlags) *cobra.Command {
	var contractID, fiat, coingeckoURL string
	cmd := &cobra.Command{
		Use:   "key-balance <public-key>",
		Short: "Show the balance the contract holds for a linkdrop key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("contract") {
				cfg.ContractID = contractID
			}
			if !crypto.ValidAccountID(cfg.ContractID) {
				return fmt.Errorf("invalid contract id %q", cfg.ContractID)
			}

			nearClient := client.NewNearClient(cfg.NodeURL, cfg.RPCTimeout)
			var rates linkdrop.RateSource
			if fiat != "" {
				rates = client.NewCoinGeckoClient(coingeckoURL)
			}

			balance, err := linkdrop.GetKeyBalance(cmd.Context(), nearClient, rates, cfg.ContractID, args[0], fiat)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:     %s\n", balance.PublicKey)
			fmt.Fprintf(out, "balance: %s NEAR (%s yoctoNEAR)\n", balance.NEAR, balance.Yocto)
			if balance.Currency != "" {
				fmt.Fprintf(out, "value:   %s %s (rate %s)\n", balance.Fiat, balance.Currency, balance.Rate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contractID, "contract", "", "linkdrop contract account (overrides LINKDROP_CONTRACT_ID)")
	cmd.Flags().StringVar(&fiat, "fiat", "", "also quote the balance in this currency, e.g. usd")
	cmd.Flags().StringVar(&coingeckoURL, "coingecko-url", "", "CoinGecko API base URL")
	_ = cmd.Flags().MarkHidden("coingecko-url")
	return cmd
}
