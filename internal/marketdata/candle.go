// Package marketdata turns the shared WebSocket into per-symbol candle streams
// and provides the historical data collaborators used before a stream starts.
package marketdata

import (
	"time"

	"charty-feed/internal/protocol"

	"github.com/shopspring/decimal"
)

// Candle is one normalised OHLC point. Time is the bar start in unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Timeframe describes a chart granularity and how much history it loads.
type Timeframe struct {
	Label   string
	Minutes int
	Days    int
}

var timeframes = map[string]Timeframe{
	"5m":  {Label: "5m", Minutes: 5, Days: 3},
	"15m": {Label: "15m", Minutes: 15, Days: 10},
	"60m": {Label: "60m", Minutes: 60, Days: 20},
}

// LookupTimeframe resolves a label such as "15m". Unknown labels fall back to
// 60 minute bars over 20 days.
func LookupTimeframe(label string) Timeframe {
	if tf, ok := timeframes[label]; ok {
		return tf
	}
	return Timeframe{Label: label, Minutes: 60, Days: 20}
}

// KnownTimeframe reports whether label is one of the configured granularities.
func KnownTimeframe(label string) bool {
	_, ok := timeframes[label]
	return ok
}

// Interval returns the bar length.
func (tf Timeframe) Interval() time.Duration {
	return time.Duration(tf.Minutes) * time.Minute
}

// Count returns the number of bars covering the lookback window.
func (tf Timeframe) Count() int {
	if tf.Minutes <= 0 {
		return 0
	}
	return (24 * 60 / tf.Minutes) * tf.Days
}

// BucketStart aligns a unix timestamp down to the start of its bar.
func (tf Timeframe) BucketStart(ts int64) int64 {
	iv := int64(tf.Minutes) * 60
	if iv <= 0 {
		return ts
	}
	return ts - ts%iv
}

// Round2 rounds a price to two decimals.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// candleFromData normalises a quote payload. Time and open are required;
// a missing close falls back to open and missing high/low to the body range.
func candleFromData(d *protocol.CandleData) (Candle, bool) {
	if d == nil || d.Time == nil || d.Open == nil {
		return Candle{}, false
	}

	c := Candle{Time: *d.Time, Open: *d.Open, Close: *d.Open}
	if d.Close != nil {
		c.Close = *d.Close
	}
	if d.High != nil {
		c.High = *d.High
	} else {
		c.High = max(c.Open, c.Close)
	}
	if d.Low != nil {
		c.Low = *d.Low
	} else {
		c.Low = min(c.Open, c.Close)
	}
	return c, true
}
