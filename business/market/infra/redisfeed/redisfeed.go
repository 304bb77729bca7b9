// Package redisfeed ingests feature frames published on the message bus.
package redisfeed

import (
	"context"

	"github.com/fd1az/multichain-arb/business/market/app"
	"github.com/fd1az/multichain-arb/business/market/infra/codec"
	"github.com/fd1az/multichain-arb/internal/bus"
)

// Source subscribes to a channel or pattern and decodes every message.
type Source struct {
	sub     bus.Subscriber
	channel string
}

var _ app.FeatureSource = (*Source)(nil)

// New creates a source reading channel from sub.
func New(sub bus.Subscriber, channel string) *Source {
	return &Source{sub: sub, channel: channel}
}

func (s *Source) Name() string { return "redis:" + s.channel }

// Run blocks until ctx is cancelled or the subscription closes.
func (s *Source) Run(ctx context.Context, sink app.Sink) error {
	msgs, err := s.sub.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			features, err := codec.Decode(msg)
			if err != nil {
				sink.Malformed(ctx, s.Name(), err)
				continue
			}
			for _, f := range features {
				sink.Ingest(ctx, s.Name(), f)
			}
		}
	}
}
