package quotes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// quotedAtLayout is the timestamp format of the Kursdaten table's Zeit row,
// e.g. "20.08.26 14:32".
const quotedAtLayout = "02.01.06 15:04"

// ErrUnsupportedAssetClass rejects quote lookups for instruments whose detail
// page renders no bid/ask table. The API maps it to 501.
var ErrUnsupportedAssetClass = errors.New("quotes not supported for asset class")

// quotePage holds the raw values read from one Kursdaten section.
type quotePage struct {
	currency string
	bid      decimal.Decimal
	ask      decimal.Decimal
	quotedAt time.Time
	venue    string
}

// parseQuotePage reads bid, ask, quote time, venue and currency from a detail
// page pinned to one venue. Currency comes from the page's schema.org meta
// tag; the rest sits in the table under the "Kursdaten" heading.
func parseQuotePage(doc *goquery.Document) (*quotePage, error) {
	page := &quotePage{
		currency: strings.TrimSpace(doc.Find(`meta[itemprop="priceCurrency"]`).First().AttrOr("content", "")),
	}

	tbl := findQuoteTable(doc)
	if tbl == nil {
		return nil, errors.New("no Kursdaten table on page")
	}

	var err error
	page.bid, err = rowIndicatorValue(tbl, "Geld")
	if err != nil {
		return nil, err
	}
	page.ask, err = rowIndicatorValue(tbl, "Brief")
	if err != nil {
		return nil, err
	}

	ts := collapseWhitespace(rowCellText(tbl, "Zeit"))
	if ts == "" {
		return nil, errors.New("Kursdaten table carries no Zeit row")
	}
	page.quotedAt, err = time.ParseInLocation(quotedAtLayout, ts, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse quote time %q: %w", ts, err)
	}

	page.venue = rowCellText(tbl, "Börse")
	return page, nil
}

// findQuoteTable locates the table below the "Kursdaten" heading.
func findQuoteTable(doc *goquery.Document) *goquery.Selection {
	var tbl *goquery.Selection
	doc.Find("h2, h3").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.Contains(heading.Text(), "Kursdaten") {
			return true
		}
		candidate := heading.Parent().Find("table").First()
		if candidate.Length() > 0 {
			tbl = candidate
			return false
		}
		return true
	})
	return tbl
}

// rowIndicatorValue reads the live-updating price span from the row whose
// header cell mentions label (Geld or Brief).
func rowIndicatorValue(tbl *goquery.Selection, label string) (decimal.Decimal, error) {
	row := findRow(tbl, label)
	if row == nil {
		return decimal.Zero, fmt.Errorf("Kursdaten table carries no %s row", label)
	}
	raw := strings.TrimSpace(row.Find("span.realtime-indicator--value").First().Text())
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s row carries no price value", label)
	}
	d, err := parseGermanDecimal(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s price %q: %w", label, raw, err)
	}
	return d, nil
}

// rowCellText returns the first td of the row whose header cell mentions
// label, empty when the row is missing.
func rowCellText(tbl *goquery.Selection, label string) string {
	row := findRow(tbl, label)
	if row == nil {
		return ""
	}
	return strings.TrimSpace(row.Find("td").First().Text())
}

func findRow(tbl *goquery.Selection, label string) *goquery.Selection {
	var row *goquery.Selection
	tbl.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if !strings.Contains(th.Text(), label) {
			return true
		}
		row = th.Parent()
		return false
	})
	return row
}

// parseGermanDecimal converts a locale-formatted number ("1.234,56") to a
// decimal.
func parseGermanDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// spreadPercent is (ask-bid)/ask in percent, zero for a zero ask so crossed
// markets on stale pages cannot divide by zero.
func spreadPercent(bid, ask decimal.Decimal) decimal.Decimal {
	if ask.IsZero() {
		return decimal.Zero
	}
	return ask.Sub(bid).Div(ask).Mul(decimal.NewFromInt(100))
}
