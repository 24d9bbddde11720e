package marketdata

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// HistoryFetcher loads the history window for a symbol and timeframe, oldest first.
type HistoryFetcher interface {
	Fetch(ctx context.Context, symbol, timeframe string) ([]Candle, error)
}

// MockHistory serves generated candles.
type MockHistory struct {
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockHistory creates a generator-backed fetcher. A nil rng is seeded from the clock.
func NewMockHistory(rng *rand.Rand, now func() time.Time) *MockHistory {
	if rng == nil {
		rng = NewRand()
	}
	if now == nil {
		now = time.Now
	}
	return &MockHistory{rng: rng, now: now}
}

func (m *MockHistory) Fetch(ctx context.Context, symbol, timeframe string) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return GenerateMock(symbol, timeframe, m.now(), m.rng), nil
}

type barsResponse struct {
	Bars []bar `json:"bars"`
}

type bar struct {
	Timestamp time.Time `json:"timestamp_utc"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *float64  `json:"volume"`
}

// RESTHistory fetches bars from the history HTTP endpoint.
type RESTHistory struct {
	base string
	rest *resty.Client
	now  func() time.Time
}

// NewRESTHistory creates a client for base, e.g. http://127.0.0.1:8000.
func NewRESTHistory(base string, timeout time.Duration) *RESTHistory {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &RESTHistory{base: base, rest: r, now: time.Now}
}

func (h *RESTHistory) Fetch(ctx context.Context, symbol, timeframe string) ([]Candle, error) {
	tf := LookupTimeframe(timeframe)
	end := h.now().UTC()
	start := end.Add(-time.Duration(tf.Days) * 24 * time.Hour)

	params := map[string]string{
		"timeframe_unit":  "MINUTE",
		"timeframe_value": strconv.Itoa(tf.Minutes),
		"start_time_utc":  start.Format(time.RFC3339),
		"end_time_utc":    end.Format(time.RFC3339),
	}

	var body barsResponse
	resp, err := h.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get(h.base + "/history/" + url.PathEscape(symbol) + "/bars")
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("history API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	out := make([]Candle, 0, len(body.Bars))
	for _, b := range body.Bars {
		out = append(out, Candle{
			Time:  b.Timestamp.Unix(),
			Open:  Round2(b.Open),
			High:  Round2(b.High),
			Low:   Round2(b.Low),
			Close: Round2(b.Close),
		})
	}
	slices.SortStableFunc(out, func(a, b Candle) int { return cmp.Compare(a.Time, b.Time) })
	return out, nil
}
