// Package chart holds the candle series a chart renders: one full history
// load followed by incremental tick updates.
package chart

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"charty-feed/internal/marketdata"
)

// ErrStaleTick is returned for an update older than the last point.
var ErrStaleTick = errors.New("tick older than last candle")

// Series is safe for concurrent use.
type Series struct {
	mu      sync.RWMutex
	symbol  string
	tf      string
	candles []marketdata.Candle
	onPaint func(marketdata.Candle)
}

// NewSeries returns an empty series. onPaint, if set, is called after every
// accepted update with the resulting last candle.
func NewSeries(onPaint func(marketdata.Candle)) *Series {
	return &Series{onPaint: onPaint}
}

// SetData replaces the whole series. Candles are sorted oldest first and
// duplicate timestamps keep the last occurrence.
func (s *Series) SetData(symbol, timeframe string, candles []marketdata.Candle) {
	data := slices.Clone(candles)
	slices.SortStableFunc(data, func(a, b marketdata.Candle) int { return cmp.Compare(a.Time, b.Time) })
	data = dedupe(data)

	s.mu.Lock()
	s.symbol = symbol
	s.tf = timeframe
	s.candles = data
	s.mu.Unlock()
}

func dedupe(sorted []marketdata.Candle) []marketdata.Candle {
	out := sorted[:0]
	for i, c := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Time == c.Time {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Update applies one tick: the same timestamp as the last point amends it,
// a later timestamp appends.
func (s *Series) Update(c marketdata.Candle) error {
	s.mu.Lock()
	err := s.applyLocked(c)
	paint := s.onPaint
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if paint != nil {
		paint(c)
	}
	return nil
}

// Merge folds a tick of a finer bar size into the series' timeframe: the
// tick is aligned to its bar start and combined with that bar if it is the
// last one.
func (s *Series) Merge(tick marketdata.Candle) error {
	s.mu.Lock()
	c := tick
	c.Time = marketdata.LookupTimeframe(s.tf).BucketStart(tick.Time)
	if n := len(s.candles); n > 0 && s.candles[n-1].Time == c.Time {
		last := s.candles[n-1]
		c.Open = last.Open
		c.High = max(last.High, tick.High)
		c.Low = min(last.Low, tick.Low)
	}
	err := s.applyLocked(c)
	paint := s.onPaint
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if paint != nil {
		paint(c)
	}
	return nil
}

func (s *Series) applyLocked(c marketdata.Candle) error {
	n := len(s.candles)
	switch {
	case n > 0 && c.Time == s.candles[n-1].Time:
		s.candles[n-1] = c
	case n == 0 || c.Time > s.candles[n-1].Time:
		s.candles = append(s.candles, c)
	default:
		return fmt.Errorf("%w: %d < %d", ErrStaleTick, c.Time, s.candles[n-1].Time)
	}
	return nil
}

// Key returns the symbol and timeframe of the loaded data.
func (s *Series) Key() (symbol, timeframe string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol, s.tf
}

// Len returns the number of candles.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// Last returns the most recent candle.
func (s *Series) Last() (marketdata.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return marketdata.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Snapshot returns a copy of the series.
func (s *Series) Snapshot() []marketdata.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.candles)
}
