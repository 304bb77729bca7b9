// Package app turns chain heads into market features.
package app

import (
	"context"

	"github.com/fd1az/multichain-arb/business/blockchain/domain"
)

// BlockSubscriber streams the heads of one chain.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState

	// Status returns detailed connection information.
	Status() domain.ConnectionStatus
}

// GasOracle samples the gas price of one chain.
type GasOracle interface {
	GasPrice(ctx context.Context, block uint64) (*domain.GasPrice, error)
}
