package linkdrop

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlexZinkM/near-linkdrop/internal/common"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/holiman/uint256"
)

// Viewer runs read-only contract methods
type Viewer interface {
	CallView(ctx context.Context, contractID, method string, args interface{}) ([]byte, error)
}

// RateSource quotes NEAR in a fiat currency
type RateSource interface {
	GetNEARRate(ctx context.Context, vsCurrency string) (string, error)
}

// GetKeyBalance gets the balance the contract holds for a linkdrop key.
// When rates is set and currency is not empty the balance is also quoted in currency.
func GetKeyBalance(ctx context.Context, viewer Viewer, rates RateSource, contractID, publicKey, currency string) (*model.KeyBalance, error) {
	pub, err := crypto.ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	publicKey = crypto.FormatPublicKey(pub)

	yocto, err := fetchKeyBalance(ctx, viewer, contractID, publicKey)
	if err != nil {
		return nil, err
	}

	balance := &model.KeyBalance{
		ContractID: contractID,
		PublicKey:  publicKey,
		Yocto:      yocto.Dec(),
		NEAR:       common.YoctoToNEAR(yocto),
	}
	if rates == nil || currency == "" {
		return balance, nil
	}

	rate, err := rates.GetNEARRate(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}

	// float only for display, not for anything sent on chain
	nearFloat, _ := strconv.ParseFloat(balance.NEAR, 64)
	rateFloat, _ := strconv.ParseFloat(rate, 64)
	balance.Currency = strings.ToUpper(currency)
	balance.Rate = rate
	balance.Fiat = fmt.Sprintf("%.2f", nearFloat*rateFloat)
	return balance, nil
}

func fetchKeyBalance(ctx context.Context, viewer Viewer, contractID, publicKey string) (*uint256.Int, error) {
	raw, err := viewer.CallView(ctx, contractID, methodGetKeyBalance, map[string]string{"key": publicKey})
	if err != nil {
		return nil, fmt.Errorf("failed to get key balance: %w", err)
	}

	// U128 comes back as a JSON string
	var amount string
	if err := json.Unmarshal(raw, &amount); err != nil {
		return nil, fmt.Errorf("unexpected key balance %q: %w", raw, err)
	}
	return common.ParseYocto(amount)
}
