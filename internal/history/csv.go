package history

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// Column headers of the CSV export. Intraday exports add Uhrzeit, index
// exports drop Volumen.
const (
	colDate   = "Datum"
	colTime   = "Uhrzeit"
	colOpen   = "Eröffnung"
	colHigh   = "Hoch"
	colLow    = "Tief"
	colClose  = "Schluss"
	colVolume = "Volumen"
)

const (
	csvDateLayout  = "02.01.2006"
	csvClockLayout = "15:04"
)

// parsePage reads one page of the semicolon-delimited export. The export
// prefixes the header with free-form metadata lines (instrument name, range
// description), so records are skipped until the Datum header shows up.
// Returns the candles and the number of data rows seen; the row count drives
// pagination, so skipped malformed rows still count.
func parsePage(logger *zap.Logger, data []byte) ([]model.Candle, int) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		logger.Warn("history.csv_unreadable", zap.Error(err))
		metrics.IncParseFailure("history_csv")
		return nil, 0
	}

	cols := make(map[string]int)
	headerAt := -1
	for i, rec := range records {
		if len(rec) > 0 && strings.TrimSpace(rec[0]) == colDate {
			for j, name := range rec {
				cols[strings.TrimSpace(name)] = j
			}
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, 0
	}

	var candles []model.Candle
	rows := 0
	for _, rec := range records[headerAt+1:] {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		rows++
		c, err := parseRow(rec, cols)
		if err != nil {
			logger.Warn("history.row_skipped", zap.Strings("record", rec), zap.Error(err))
			metrics.IncParseFailure("history_row")
			continue
		}
		candles = append(candles, c)
	}
	return candles, rows
}

func parseRow(rec []string, cols map[string]int) (model.Candle, error) {
	field := func(name string) (string, error) {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) {
			return "", fmt.Errorf("column %s missing", name)
		}
		return strings.TrimSpace(rec[idx]), nil
	}

	rawDate, err := field(colDate)
	if err != nil {
		return model.Candle{}, err
	}
	ts, err := time.ParseInLocation(csvDateLayout, rawDate, time.Local)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse date %q: %w", rawDate, err)
	}
	if idx, ok := cols[colTime]; ok && idx < len(rec) {
		clock, err := time.Parse(csvClockLayout, strings.TrimSpace(rec[idx]))
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse clock %q: %w", rec[idx], err)
		}
		ts = ts.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	}

	c := model.Candle{Timestamp: ts}
	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{colOpen, &c.Open},
		{colHigh, &c.High},
		{colLow, &c.Low},
		{colClose, &c.Close},
	} {
		raw, err := field(f.name)
		if err != nil {
			return model.Candle{}, err
		}
		d, err := parseCSVDecimal(raw)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse %s %q: %w", f.name, raw, err)
		}
		*f.dst = d
	}

	if idx, ok := cols[colVolume]; ok && idx < len(rec) {
		c.Volume = parseVolume(rec[idx])
	}
	return c, nil
}

// parseCSVDecimal converts German-formatted numbers, "1.234,56" style.
func parseCSVDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(raw, ".", "")
	raw = strings.ReplaceAll(raw, ",", ".")
	return decimal.NewFromString(raw)
}

// parseVolume reads the Volumen cell. The export writes volumes with dot
// thousands separators and sometimes a fractional part, which gets dropped.
// Empty and placeholder cells count as zero, as does anything unparsable.
func parseVolume(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "--" {
		return 0
	}
	raw, _, _ = strings.Cut(raw, ",")
	raw = strings.ReplaceAll(raw, ".", "")
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
