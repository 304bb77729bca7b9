package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type options struct {
	meterProvider  metric.MeterProvider
	providerName   string
	roundTripper   http.RoundTripper
	requestTimeout time.Duration
	headers        map[string]string
	baseURL        string
}

// Option configures a Client.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		providerName:   "default",
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMeterProvider sets the OTEL meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithProviderName sets the provider attribute on metrics and spans.
func WithProviderName(name string) Option {
	return func(o *options) {
		o.providerName = name
	}
}

// WithRoundTripper replaces the default transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTripper = rt
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = timeout
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}

func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}
