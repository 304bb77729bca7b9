package binance

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/fd1az/multichain-arb/business/pricing/app"
	"github.com/fd1az/multichain-arb/internal/apperror"
	"github.com/fd1az/multichain-arb/internal/httpclient"
	"github.com/fd1az/multichain-arb/internal/logger"
)

// REST endpoints
const (
	BaseRESTURL   = "https://api.binance.com"
	BaseRESTURLUS = "https://api.binance.us"

	bookTickerPath = "/api/v3/ticker/bookTicker"
)

// Snapshot seeds a price book from the REST book tickers so prices are
// available before the first stream update.
type Snapshot struct {
	client  *httpclient.Client
	symbols []string
	logger  logger.LoggerInterface
	now     func() time.Time
}

// NewSnapshot creates a snapshot reader against baseURL.
func NewSnapshot(baseURL string, symbols []string, log logger.LoggerInterface) (*Snapshot, error) {
	if baseURL == "" {
		baseURL = BaseRESTURL
	}
	client, err := httpclient.New(
		httpclient.WithBaseURL(baseURL),
		httpclient.WithProviderName(sourceName),
		httpclient.WithRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Snapshot{client: client, symbols: symbols, logger: log, now: time.Now}, nil
}

// Seed fetches every configured symbol once and updates sink. It returns the
// number of tickers delivered.
func (s *Snapshot) Seed(ctx context.Context, sink app.TickerSink) (int, error) {
	symbols := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		symbols[i] = strings.ToUpper(sym)
	}
	param, err := sonnet.Marshal(symbols)
	if err != nil {
		return 0, err
	}

	var rows []RESTBookTicker
	if err := s.client.GetJSON(ctx, bookTickerPath, url.Values{"symbols": {string(param)}}, &rows); err != nil {
		return 0, apperror.New(apperror.CodeReferencePriceError,
			apperror.WithCause(err),
			apperror.WithContext("binance book ticker snapshot"))
	}

	n := 0
	for _, row := range rows {
		t, err := tickerFrom(row.event(), s.now())
		if err != nil {
			s.logger.Debug(ctx, "skipping snapshot ticker", "symbol", row.Symbol, "error", err)
			continue
		}
		sink.Update(ctx, t)
		n++
	}
	return n, nil
}
