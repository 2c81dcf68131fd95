package assets

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"p2p/apps/p2p/internal/model"
)

// Asset represents a crypto asset that can be traded p2p
type Asset struct {
	Type     model.CryptoType `json:"type"`
	Name     string           `json:"name"`
	Address  common.Address   `json:"address"` // zero address for the native coin
	Decimals int32            `json:"decimals"`
}

// PriceDecimals is the number of fractional digits a stored price keeps.
const PriceDecimals int32 = 8

// Currency represents a fiat currency a price can be quoted in
type Currency struct {
	Type     model.FiatType `json:"type"`
	Name     string         `json:"name"`
	Decimals int32          `json:"decimals"`
}

// AssetRegistry holds all supported crypto assets and fiat currencies
type AssetRegistry struct {
	assets     map[model.CryptoType]*Asset
	currencies map[model.FiatType]*Currency
}

// NewAssetRegistry creates a new asset registry with all supported assets
func NewAssetRegistry() *AssetRegistry {
	registry := &AssetRegistry{
		assets:     make(map[model.CryptoType]*Asset),
		currencies: make(map[model.FiatType]*Currency),
	}

	supportedAssets := []*Asset{
		{
			Type:     model.CryptoETH,
			Name:     "Ether",
			Address:  common.Address{},
			Decimals: 18,
		},
		{
			Type:     model.CryptoERC20,
			Name:     "ERC20 token",
			Address:  common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			Decimals: 6,
		},
	}

	supportedCurrencies := []*Currency{
		{Type: model.FiatKZT, Name: "Kazakhstani tenge", Decimals: 2},
		{Type: model.FiatUSD, Name: "US dollar", Decimals: 2},
	}

	for _, asset := range supportedAssets {
		registry.assets[asset.Type] = asset
	}
	for _, currency := range supportedCurrencies {
		registry.currencies[currency.Type] = currency
	}

	return registry
}

// GetAsset returns a crypto asset by its type (case-insensitive)
func (r *AssetRegistry) GetAsset(cryptoType string) (*Asset, bool) {
	asset, exists := r.assets[model.CryptoType(strings.ToLower(cryptoType))]
	return asset, exists
}

// GetCurrency returns a fiat currency by its type (case-insensitive)
func (r *AssetRegistry) GetCurrency(fiatType string) (*Currency, bool) {
	currency, exists := r.currencies[model.FiatType(strings.ToLower(fiatType))]
	return currency, exists
}

// IsAssetSupported checks if a crypto type is supported
func (r *AssetRegistry) IsAssetSupported(cryptoType string) bool {
	_, exists := r.GetAsset(cryptoType)
	return exists
}

// IsCurrencySupported checks if a fiat type is supported
func (r *AssetRegistry) IsCurrencySupported(fiatType string) bool {
	_, exists := r.GetCurrency(fiatType)
	return exists
}

// FitsPrecision reports whether amount has no more fractional digits than
// the asset can represent.
func (a *Asset) FitsPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(a.Decimals))
}

// FitsPricePrecision reports whether a unit price quoted in this currency is
// stored without rounding.
func (c *Currency) FitsPricePrecision(price decimal.Decimal) bool {
	return price.Equal(price.Truncate(PriceDecimals))
}

// GetSupportedTypes returns all supported crypto types
func (r *AssetRegistry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.assets))
	for t := range r.assets {
		types = append(types, string(t))
	}
	return types
}
