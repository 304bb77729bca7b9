// Package wsfeed ingests feature frames from a WebSocket stream.
package wsfeed

import (
	"context"

	"github.com/fd1az/multichain-arb/business/market/app"
	"github.com/fd1az/multichain-arb/business/market/infra/codec"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/wsconn"
)

// Source reads frames from a reconnecting WebSocket connection.
type Source struct {
	cfg       wsconn.Config
	subscribe []byte
	log       logger.LoggerInterface
}

var _ app.FeatureSource = (*Source)(nil)

// New creates a source. subscribe, when non-empty, is sent after every
// successful connect.
func New(cfg wsconn.Config, subscribe []byte, log logger.LoggerInterface) *Source {
	return &Source{cfg: cfg, subscribe: subscribe, log: log}
}

func (s *Source) Name() string { return "ws:" + s.cfg.Name }

// Run connects with retry and delivers frames until ctx is cancelled.
func (s *Source) Run(ctx context.Context, sink app.Sink) error {
	client, err := wsconn.New(s.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnMessage(func(ctx context.Context, msg []byte) {
		features, err := codec.Decode(msg)
		if err != nil {
			sink.Malformed(ctx, s.Name(), err)
			return
		}
		for _, f := range features {
			sink.Ingest(ctx, s.Name(), f)
		}
	})
	client.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			s.log.Warn(ctx, "feature stream state changed", "source", s.Name(), "state", string(state), "error", err)
		}
		if state == wsconn.StateConnected && len(s.subscribe) > 0 {
			go func() {
				if err := client.Send(ctx, s.subscribe); err != nil {
					s.log.Error(ctx, "feature stream subscribe failed", "source", s.Name(), "error", err)
				}
			}()
		}
	})

	if err := client.ConnectWithRetry(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}
