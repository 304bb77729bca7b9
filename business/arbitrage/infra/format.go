package infra

import (
	"strings"

	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	market "github.com/fd1az/multichain-arb/business/market/domain"
)

// describePath renders legs as "swap USDC>WETH@ethereum, bridge WETH>WETH@arbitrum>ethereum".
func describePath(c domain.Candidate, chains *market.ChainRegistry) string {
	parts := make([]string, 0, len(c.Legs))
	for _, l := range c.Legs {
		where := chains.Name(l.Chain)
		if from, to, ok := l.BridgeRoute(); ok {
			where = chains.Name(from) + ">" + chains.Name(to)
		}
		parts = append(parts, string(l.Kind)+" "+l.AssetIn+">"+l.AssetOut+"@"+where)
	}
	return strings.Join(parts, ", ")
}

func describeChains(c domain.Candidate, chains *market.ChainRegistry) string {
	ids := c.Chains()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, chains.Name(id))
	}
	return strings.Join(names, ", ")
}

func rejectedTotal(m map[domain.RejectReason]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
