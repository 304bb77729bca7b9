package asset

import "github.com/ethereum/go-ethereum/common"

// Chain ids of the networks with well-known tokens below.
const (
	ChainEthereum uint64 = 1
	ChainOptimism uint64 = 10
	ChainBase     uint64 = 8453
	ChainArbitrum uint64 = 42161
)

type tokenSpec struct {
	symbol    string
	name      string
	decimals  uint8
	canonical string
	addrs     map[uint64]string
}

var wellKnownTokens = []tokenSpec{
	{symbol: "WETH", name: "Wrapped Ether", decimals: 18, canonical: "ETH", addrs: map[uint64]string{
		ChainEthereum: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		ChainArbitrum: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		ChainOptimism: "0x4200000000000000000000000000000000000006",
		ChainBase:     "0x4200000000000000000000000000000000000006",
	}},
	{symbol: "USDC", name: "USD Coin", decimals: 6, addrs: map[uint64]string{
		ChainEthereum: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		ChainArbitrum: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		ChainOptimism: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		ChainBase:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}},
	{symbol: "USDT", name: "Tether USD", decimals: 6, addrs: map[uint64]string{
		ChainEthereum: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		ChainArbitrum: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		ChainOptimism: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
	}},
	{symbol: "DAI", name: "Dai Stablecoin", decimals: 18, addrs: map[uint64]string{
		ChainEthereum: "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		ChainArbitrum: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
		ChainOptimism: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
		ChainBase:     "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
	}},
	{symbol: "WBTC", name: "Wrapped Bitcoin", decimals: 8, canonical: "BTC", addrs: map[uint64]string{
		ChainEthereum: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
		ChainArbitrum: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f",
	}},
}

// USD is the pricing numeraire.
var USD = mustNew(FiatID("USD"), "USD", "US Dollar", 2)

// DefaultRegistry returns ETH on every known chain, the well-known tokens
// and USD.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	for _, chain := range []uint64{ChainEthereum, ChainArbitrum, ChainOptimism, ChainBase} {
		must(r.Register(mustNew(NativeID(chain), "ETH", "Ether", 18)))
	}
	for _, t := range wellKnownTokens {
		for chain, addr := range t.addrs {
			a := mustNew(TokenID(chain, common.HexToAddress(addr)), t.symbol, t.name, t.decimals)
			if t.canonical != "" {
				a = a.WithCanonical(t.canonical)
			}
			must(r.Register(a))
		}
	}
	must(r.Register(USD))
	return r
}
