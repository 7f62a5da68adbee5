package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	coingeckoAPI    = "https://api.coingecko.com/api/v3"
	coingeckoNEARID = "near"
)

// CoinGeckoClient client for CoinGecko API
type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoClient creates a new CoinGecko client; empty baseURL uses the public API
func NewCoinGeckoClient(baseURL string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetNEARRate gets the NEAR exchange rate in the given fiat currency (e.g. "usd")
func (c *CoinGeckoClient) GetNEARRate(ctx context.Context, vsCurrency string) (string, error) {
	vsCurrency = strings.ToLower(vsCurrency)
	q := url.Values{}
	q.Set("ids", coingeckoNEARID)
	q.Set("vs_currencies", vsCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	// {"near":{"usd":5.12}}
	var priceResp map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return "", fmt.Errorf("failed to decode rate: %w", err)
	}

	rate, ok := priceResp[coingeckoNEARID][vsCurrency]
	if !ok {
		return "", fmt.Errorf("no %s rate for NEAR", vsCurrency)
	}
	return strconv.FormatFloat(rate, 'f', 4, 64), nil
}
