package marketdata

import (
	"math/rand/v2"
	"time"

	"charty-feed/internal/common"
)

// DefaultStartPrice seeds the random walk for symbols without a known level.
const DefaultStartPrice = 5000.0

var startPrices = map[string]float64{
	common.ESSymbol:  5000,
	common.MESSymbol: 5000,
	common.NQSymbol:  18000,
}

// StartPrice returns the random-walk seed price for symbol.
func StartPrice(symbol string) float64 {
	if p, ok := startPrices[symbol]; ok {
		return p
	}
	return DefaultStartPrice
}

// NewRand returns a generator seeded from the clock.
func NewRand() *rand.Rand {
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>17|1))
}

// Walk is a bounded random walk whose step sizes scale with the bar interval.
type Walk struct {
	rng     *rand.Rand
	minutes float64
	price   float64
}

// NewWalk starts a walk at price. A nil rng is seeded from the clock.
func NewWalk(price float64, intervalMinutes int, rng *rand.Rand) *Walk {
	if rng == nil {
		rng = NewRand()
	}
	return &Walk{rng: rng, minutes: float64(intervalMinutes), price: price}
}

// Price returns the last close.
func (w *Walk) Price() float64 { return w.price }

// Next produces the bar starting at ts from the previous close.
func (w *Walk) Next(ts int64) Candle {
	open := w.price + (w.rng.Float64()-0.5)*(w.minutes/5)
	cls := open + (w.rng.Float64()-0.5)*(w.minutes/2.5)
	high := max(open, cls) + w.rng.Float64()*(w.minutes/10)
	low := min(open, cls) - w.rng.Float64()*(w.minutes/10)

	c := Candle{
		Time:  ts,
		Open:  Round2(open),
		High:  Round2(high),
		Low:   Round2(low),
		Close: Round2(cls),
	}
	w.price = c.Close
	return c
}

// Tick moves the close of an in-progress bar by a small step and widens its
// range to contain the new close.
func (w *Walk) Tick(c Candle) Candle {
	cls := Round2(c.Close + (w.rng.Float64()-0.5)*(w.minutes/10))
	c.Close = cls
	c.High = max(c.High, cls)
	c.Low = min(c.Low, cls)
	w.price = cls
	return c
}

// GenerateCandles returns n bars spaced intervalMinutes apart, the last one
// starting at the bar boundary at or before end.
func GenerateCandles(n, intervalMinutes int, startPrice float64, end time.Time, rng *rand.Rand) []Candle {
	if n <= 0 || intervalMinutes <= 0 {
		return nil
	}

	iv := int64(intervalMinutes) * 60
	last := end.Unix() - end.Unix()%iv
	ts := last - int64(n-1)*iv

	walk := NewWalk(startPrice, intervalMinutes, rng)
	out := make([]Candle, 0, n)
	for range n {
		out = append(out, walk.Next(ts))
		ts += iv
	}
	return out
}

// GenerateMock synthesises the history window of timeframe for symbol ending at now.
func GenerateMock(symbol, timeframe string, now time.Time, rng *rand.Rand) []Candle {
	tf := LookupTimeframe(timeframe)
	return GenerateCandles(tf.Count(), tf.Minutes, StartPrice(symbol), now, rng)
}
