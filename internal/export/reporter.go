// Package export writes historical bars to disk for offline inspection.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"charty-feed/internal/marketdata"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrNoBars is returned when there is nothing to summarise.
var ErrNoBars = errors.New("no bars")

// Summary describes one exported series.
type Summary struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Bars      int       `json:"bars"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
}

// Summarize computes range statistics over candles, which must be sorted
// oldest first.
func Summarize(symbol, timeframe string, candles []marketdata.Candle) (Summary, error) {
	if len(candles) == 0 {
		return Summary{}, ErrNoBars
	}
	first, last := candles[0], candles[len(candles)-1]
	s := Summary{
		Symbol:    symbol,
		Timeframe: timeframe,
		Bars:      len(candles),
		Start:     time.Unix(first.Time, 0).UTC(),
		End:       time.Unix(last.Time, 0).UTC(),
		Open:      first.Open,
		Close:     last.Close,
		High:      first.High,
		Low:       first.Low,
	}
	for _, c := range candles[1:] {
		s.High = max(s.High, c.High)
		s.Low = min(s.Low, c.Low)
	}

	open, closePrice := decimal.NewFromFloat(s.Open), decimal.NewFromFloat(s.Close)
	change := closePrice.Sub(open)
	s.Change = change.Round(2).InexactFloat64()
	if !open.IsZero() {
		s.ChangePct = change.Div(open).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return s, nil
}

// Reporter writes one series in several formats.
type Reporter struct {
	symbol     string
	timeframe  string
	candles    []marketdata.Candle
	outputPath string
}

// NewReporter creates a reporter writing into outputPath.
func NewReporter(symbol, timeframe string, candles []marketdata.Candle, outputPath string) *Reporter {
	return &Reporter{
		symbol:     symbol,
		timeframe:  timeframe,
		candles:    candles,
		outputPath: outputPath,
	}
}

// GenerateReport writes the CSV, JSON and summary files.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, out := range []struct {
		suffix string
		write  func(io.Writer) error
	}{
		{"bars.csv", r.WriteCSV},
		{"bars.json", r.WriteJSON},
		{"summary.txt", r.PrintSummary},
	} {
		if err := r.writeFile(out.suffix, out.write); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeFile(suffix string, write func(io.Writer) error) error {
	path := filepath.Join(r.outputPath, r.baseName()+"_"+suffix)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", suffix, err)
	}
	defer file.Close()

	if err := write(file); err != nil {
		return fmt.Errorf("failed to write %s: %w", suffix, err)
	}
	log.Info().Str("file", path).Msg("Report generated")
	return nil
}

// baseName turns the contract id into something safe for a file name.
func (r *Reporter) baseName() string {
	name := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			return c
		default:
			return '_'
		}
	}, r.symbol)
	return name + "_" + r.timeframe
}

// WriteCSV writes a header row followed by one row per bar.
func (r *Reporter) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_utc", "open", "high", "low", "close"}); err != nil {
		return err
	}
	for _, c := range r.candles {
		record := []string{
			time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', 2, 64),
			strconv.FormatFloat(c.High, 'f', 2, 64),
			strconv.FormatFloat(c.Low, 'f', 2, 64),
			strconv.FormatFloat(c.Close, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the summary and bars as one indented document.
func (r *Reporter) WriteJSON(w io.Writer) error {
	summary, err := Summarize(r.symbol, r.timeframe, r.candles)
	if err != nil && !errors.Is(err, ErrNoBars) {
		return err
	}
	report := struct {
		Summary     Summary             `json:"summary"`
		Bars        []marketdata.Candle `json:"bars"`
		GeneratedAt time.Time           `json:"generated_at"`
	}{summary, r.candles, time.Now().UTC()}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintSummary writes a human-readable summary.
func (r *Reporter) PrintSummary(w io.Writer) error {
	s, err := Summarize(r.symbol, r.timeframe, r.candles)
	if errors.Is(err, ErrNoBars) {
		_, err = fmt.Fprintf(w, "%s %s: no bars\n", r.symbol, r.timeframe)
		return err
	}

	fmt.Fprintf(w, "=== %s %s ===\n", s.Symbol, s.Timeframe)
	fmt.Fprintf(w, "Period: %s to %s\n", s.Start.Format(time.DateTime), s.End.Format(time.DateTime))
	fmt.Fprintf(w, "Bars: %d\n", s.Bars)
	fmt.Fprintf(w, "Open: %.2f  Close: %.2f\n", s.Open, s.Close)
	fmt.Fprintf(w, "High: %.2f  Low: %.2f\n", s.High, s.Low)
	_, err = fmt.Fprintf(w, "Change: %+.2f (%+.2f%%)\n", s.Change, s.ChangePct)
	return err
}
