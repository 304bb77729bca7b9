// Package redisinbox reads realized trade outcomes from the message bus.
package redisinbox

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/fd1az/multichain-arb/business/feedback/domain"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// Message is the inbox payload. The pnl may be a JSON number or string.
type Message struct {
	CandidateID    string          `json:"candidate_id"`
	RealizedPnLUSD decimal.Decimal `json:"realized_pnl_usd"`
}

// Recorder records a realized outcome.
type Recorder interface {
	RecordOutcome(ctx context.Context, candidateID string, realizedPnLUSD decimal.Decimal) (domain.Outcome, error)
}

// Consumer feeds inbox messages into a Recorder.
type Consumer struct {
	sub     bus.Subscriber
	channel string
	rec     Recorder
	log     logger.LoggerInterface
}

func New(sub bus.Subscriber, channel string, rec Recorder, log logger.LoggerInterface) *Consumer {
	return &Consumer{sub: sub, channel: channel, rec: rec, log: log}
}

func (c *Consumer) Name() string { return "inbox:" + c.channel }

// Decode parses one inbox payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := sonnet.Unmarshal(payload, &m); err != nil {
		return Message{}, err
	}
	if m.CandidateID == "" {
		return Message{}, errors.New("outcome without candidate_id")
	}
	return m, nil
}

// Run blocks until ctx is cancelled or the subscription closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.sub.Subscribe(ctx, c.channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			m, err := Decode(payload)
			if err != nil {
				c.log.Warn(ctx, "malformed outcome message", "channel", c.channel, "error", err)
				continue
			}
			o, err := c.rec.RecordOutcome(ctx, m.CandidateID, m.RealizedPnLUSD)
			if err != nil {
				c.log.Warn(ctx, "outcome rejected", "candidate", m.CandidateID, "error", err)
				continue
			}
			c.log.Info(ctx, "outcome recorded",
				"candidate", o.CandidateID,
				"strategy", o.Strategy,
				"realized_usd", o.RealizedPnLUSD.StringFixed(2),
				"error_usd", o.ErrorUSD.StringFixed(2),
			)
		}
	}
}
