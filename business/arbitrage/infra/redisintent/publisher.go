// Package redisintent publishes trade intents on the message bus.
package redisintent

import (
	"context"

	"github.com/sugawarayuuta/sonnet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/multichain-arb/business/arbitrage/app"
	"github.com/fd1az/multichain-arb/business/arbitrage/domain"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/bus"
	"github.com/fd1az/multichain-arb/internal/circuitbreaker"
)

const meterName = "github.com/fd1az/multichain-arb/business/arbitrage/infra/redisintent"

// Publisher encodes intents as JSON and publishes them on one channel.
type Publisher struct {
	bus     bus.Publisher
	channel string
	breaker *circuitbreaker.CircuitBreaker[struct{}]
	sent    metric.Int64Counter
}

var _ app.IntentPublisher = (*Publisher)(nil)

// New creates a publisher on channel.
func New(b bus.Publisher, channel string) *Publisher {
	p := &Publisher{
		bus:     b,
		channel: channel,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.DefaultConfig("intent-publisher")),
	}
	p.sent, _ = otel.Meter(meterName).Int64Counter("arbitrage_intents_published_total",
		metric.WithDescription("Trade intents published by outcome"))
	return p
}

// Channel returns the channel intents are published on.
func (p *Publisher) Channel() string { return p.channel }

// Publish implements app.IntentPublisher.
func (p *Publisher) Publish(ctx context.Context, intent domain.TradeIntent) error {
	payload, err := sonnet.Marshal(intent)
	if err != nil {
		return apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err), apperror.WithContext("encode intent "+intent.ID))
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.bus.Publish(ctx, p.channel, payload)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err != nil {
		if apperror.HasCode(err, apperror.CodeCircuitOpen) || apperror.HasCode(err, apperror.CodeBusPublishFailed) {
			return err
		}
		return apperror.New(apperror.CodeBusPublishFailed, apperror.WithCause(err), apperror.WithContext(p.channel))
	}
	return nil
}
