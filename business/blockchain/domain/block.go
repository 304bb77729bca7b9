// Package domain contains the chain head and gas types of the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is a chain head.
type Block struct {
	Chain      uint64
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	GasLimit   uint64
	GasUsed    uint64
	BaseFee    *big.Int // nil before London or on chains without EIP-1559
}

// NextBaseFee projects the EIP-1559 base fee of the following block. The
// fee moves by at most 1/8 towards the gas target of half the limit.
func (b *Block) NextBaseFee() *big.Int {
	if b.BaseFee == nil {
		return nil
	}
	target := b.GasLimit / 2
	if target == 0 || b.GasUsed == target {
		return new(big.Int).Set(b.BaseFee)
	}

	var used, tgt big.Int
	used.SetUint64(b.GasUsed)
	tgt.SetUint64(target)

	delta := new(big.Int)
	if b.GasUsed > target {
		delta.Sub(&used, &tgt)
	} else {
		delta.Sub(&tgt, &used)
	}
	delta.Mul(delta, b.BaseFee)
	delta.Div(delta, &tgt)
	delta.Div(delta, big.NewInt(8))

	if b.GasUsed > target {
		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}
		return delta.Add(delta, b.BaseFee)
	}
	next := new(big.Int).Sub(b.BaseFee, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return next
}

// Lag returns how far the block timestamp trails now.
func (b *Block) Lag(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// ConnectionState represents the state of a node connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus contains detailed connection information.
type ConnectionStatus struct {
	Chain      uint64
	State      ConnectionState
	LastBlock  uint64
	LastUpdate time.Time
	Reconnects int
	UsingHTTP  bool // true if using HTTP fallback
}
