package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNEARRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "near", r.URL.Query().Get("ids"))
		assert.Equal(t, "eur", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"near":{"eur":4.123456}}`))
	}))
	defer srv.Close()

	rate, err := NewCoinGeckoClient(srv.URL+"/").GetNEARRate(context.Background(), "EUR")
	require.NoError(t, err)
	assert.Equal(t, "4.1235", rate)
}

func TestGetNEARRateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("vs_currencies") == "usd" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"near":{}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(srv.URL)
	_, err := c.GetNEARRate(context.Background(), "usd")
	assert.ErrorContains(t, err, "status 429")

	_, err = c.GetNEARRate(context.Background(), "rub")
	assert.ErrorContains(t, err, "no rub rate")
}
