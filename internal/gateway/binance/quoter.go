package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"proppilot/internal/pkg/circuit"

	"github.com/adshao/go-binance/v2/futures"
)

// Quoter fetches mark prices so the paper executor can re-mark open
// positions between feed snapshots. Nothing else flows through this
// gateway; feature computation lives outside the engine.
type Quoter struct {
	cfg     Config
	client  *futures.Client
	breaker *circuit.Breaker
}

func New(cfg Config) (*Quoter, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Quoter{
		cfg:     final,
		client:  client,
		breaker: circuit.NewBreaker("binance-quotes", 3, 30*time.Second),
	}, nil
}

// MarkPrice returns the current mark price for an instrument.
func (q *Quoter) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("binance quoter not initialized")
	}
	exchangeSymbol := q.cfg.exchangeSymbol(symbol)
	if exchangeSymbol == "" {
		return 0, fmt.Errorf("invalid symbol: %s", symbol)
	}
	if q.breaker != nil && !q.breaker.Allow() {
		return 0, fmt.Errorf("mark price source suspended for %s", symbol)
	}
	res, err := q.client.NewPremiumIndexService().Symbol(exchangeSymbol).Do(ctx)
	if err != nil {
		if q.breaker != nil {
			q.breaker.RecordFailure()
		}
		return 0, err
	}
	if q.breaker != nil {
		q.breaker.RecordSuccess()
	}
	for _, entry := range res {
		if entry == nil {
			continue
		}
		if strings.EqualFold(entry.Symbol, exchangeSymbol) {
			return parseFloat(entry.MarkPrice), nil
		}
	}
	if len(res) > 0 {
		return parseFloat(res[0].MarkPrice), nil
	}
	return 0, fmt.Errorf("mark price not available for %s", symbol)
}

func parseFloat(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
