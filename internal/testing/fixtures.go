package testing

import (
	"github.com/aristath/cryptovault/internal/domain"
)

// NewPositionFixtures returns a set of test positions for use in tests
func NewPositionFixtures() []domain.Position {
	return []domain.Position{
		{ID: "pos-btc", CoinKey: "bitcoin", Symbol: "BTC", Quantity: 0.5, BuyPrice: 20000},
		{ID: "pos-eth", CoinKey: "ethereum", Symbol: "ETH", Quantity: 4, BuyPrice: 1500},
		{ID: "pos-sol", CoinKey: "solana", Symbol: "SOL", Quantity: 10, BuyPrice: 0}, // airdrop, no cost basis
	}
}

// NewQuoteFixtures returns spot prices matching NewPositionFixtures
func NewQuoteFixtures() domain.PriceQuote {
	return domain.PriceQuote{
		"bitcoin":  60000,
		"ethereum": 3000,
		"solana":   150,
	}
}

// NewMarketFixtures returns a short market listing, largest first
func NewMarketFixtures() []domain.MarketCoin {
	return []domain.MarketCoin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 60000, PriceChangePercentage24h: 1.2, MarketCap: 1.2e12},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3000, PriceChangePercentage24h: -0.8, MarketCap: 3.6e11},
		{ID: "tether", Symbol: "usdt", Name: "Tether", CurrentPrice: 1, PriceChangePercentage24h: 0, MarketCap: 1.1e11},
		{ID: "solana", Symbol: "sol", Name: "Solana", CurrentPrice: 150, PriceChangePercentage24h: 4.5, MarketCap: 7e10},
	}
}
