package market

import (
	"strings"
	"time"
)

// Candle represents OHLC candlestick data. Trigger detection only consumes
// Time, Low and High.
type Candle struct {
	Time   time.Time
	Low    float64
	High   float64
	Open   float64
	Close  float64
	Volume float64
}

// Normalize turns whatever the user typed ("sol", "SOL/USDT", "BTC-USD")
// into the bare uppercase ticker.
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range []string{"/USDT", "/USD", "-USDT", "-USD"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
