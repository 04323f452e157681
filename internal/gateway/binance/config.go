package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string

	// SymbolMap translates instrument symbols to the exchange's naming
	// where they differ (e.g. XAUUSD -> PAXGUSDT as a gold proxy).
	// Unmapped symbols pass through unchanged.
	SymbolMap map[string]string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}

func (c Config) exchangeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if mapped, ok := c.SymbolMap[symbol]; ok {
		return strings.ToUpper(strings.TrimSpace(mapped))
	}
	return symbol
}
