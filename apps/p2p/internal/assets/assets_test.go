package assets

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewAssetRegistry()

	eth, ok := r.GetAsset("ETH")
	require.True(t, ok)
	require.Equal(t, int32(18), eth.Decimals)

	require.True(t, r.IsAssetSupported("erc20"))
	require.False(t, r.IsAssetSupported("btc"))
	require.True(t, r.IsCurrencySupported("USD"))
	require.False(t, r.IsCurrencySupported("eur"))
	require.ElementsMatch(t, []string{"eth", "erc20"}, r.GetSupportedTypes())
}

func TestFitsPrecision(t *testing.T) {
	r := NewAssetRegistry()
	token, _ := r.GetAsset("erc20")

	require.True(t, token.FitsPrecision(decimal.RequireFromString("1.123456")))
	require.False(t, token.FitsPrecision(decimal.RequireFromString("1.1234567")))
}

func TestFitsPricePrecision(t *testing.T) {
	usd, ok := NewAssetRegistry().GetCurrency("USD")
	require.True(t, ok)

	require.True(t, usd.FitsPricePrecision(decimal.RequireFromString("30000.12345678")))
	require.True(t, usd.FitsPricePrecision(decimal.RequireFromString("1.500000000")))
	require.False(t, usd.FitsPricePrecision(decimal.RequireFromString("0.123456789")))
}
