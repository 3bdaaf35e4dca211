package basedata

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Checker-Finance/comdirect-adapter/pkg/config"
)

// ErrVenueNotMapped flags a venue name that appears in the trading-mode
// tables but is missing from the page's venue selector. The two sources are
// rendered from the same dataset, so a mismatch means the markup changed.
var ErrVenueNotMapped = errors.New("venue not present in notation map")

const (
	// column labels of the per-mode venue cells on standard detail pages
	venueLabelLT = "LiveTrading"
	venueLabelEX = "Börse"

	// header labels identifying the per-mode liquidity tables
	liquidityLabelLT = "Gestellte Kurse"
	liquidityLabelEX = "Anzahl Kurse"

	// placeholder the site renders for a venue cell with no entry
	emptyVenueCell = "--"

	// venue names carrying this prefix trade via LiveTrading on warrant pages
	liveTradingPrefix = "LT "
)

var notationIDPattern = regexp.MustCompile(`ID_NOTATION=(\d+)`)

// Notations holds the venue-to-notation-id maps of one instrument page,
// split by trading mode, plus the preferred id per mode.
type Notations struct {
	LifeTrading map[string]string
	Exchange    map[string]string
	PreferredLT string
	PreferredEX string
}

func emptyNotations() *Notations {
	return &Notations{
		LifeTrading: map[string]string{},
		Exchange:    map[string]string{},
	}
}

// venueSet is a venue-name to notation-id map that remembers document order,
// which the preferred-id fallback and tie-breaking depend on.
type venueSet struct {
	ids   map[string]string
	order []string
}

func newVenueSet() *venueSet {
	return &venueSet{ids: map[string]string{}}
}

func (v *venueSet) add(name, id string) {
	if _, ok := v.ids[name]; !ok {
		v.order = append(v.order, name)
	}
	v.ids[name] = id
}

func (v *venueSet) len() int { return len(v.ids) }

// first returns the id of the earliest venue in document order.
func (v *venueSet) first() string {
	if len(v.order) == 0 {
		return ""
	}
	return v.ids[v.order[0]]
}

// collectSelectorOptions reads the venue selector: one option per venue, the
// label attribute (or option text) naming the venue and the value attribute
// carrying its notation id.
func collectSelectorOptions(doc *goquery.Document) *venueSet {
	set := newVenueSet()
	doc.Find("select#marketSelect option").Each(func(_ int, opt *goquery.Selection) {
		id := strings.TrimSpace(opt.AttrOr("value", ""))
		name := strings.TrimSpace(opt.AttrOr("label", ""))
		if name == "" {
			name = strings.TrimSpace(opt.Text())
		}
		if id == "" || name == "" {
			return
		}
		set.add(name, id)
	})
	return set
}

// collectSingleVenue handles pages that trade on exactly one venue and render
// a plain table instead of a selector. The venue name sits in the first cell
// of the first row; the notation id is percent-encoded inside the data-plugin
// attribute of the last row's link.
func collectSingleVenue(doc *goquery.Document) *venueSet {
	set := newVenueSet()
	tbl := doc.Find("div.grid.grid--no-gutter table.simple-table").First()
	if tbl.Length() == 0 {
		return set
	}
	rows := tbl.Find("tr")
	if rows.Length() == 0 {
		return set
	}
	venue := strings.TrimSpace(rows.First().Find("td").First().Text())
	plugin := rows.Last().Find("a").First().AttrOr("data-plugin", "")
	_, after, ok := strings.Cut(plugin, "ID_NOTATION%3D")
	if venue == "" || !ok {
		return set
	}
	id, _, _ := strings.Cut(after, "%26")
	if id != "" {
		set.add(venue, id)
	}
	return set
}

// categorizeByScan splits the raw venue map by trading mode using the
// per-mode columns of the venue overview table. Placeholder cells are
// skipped; a venue named there but missing from the selector is an error.
func categorizeByScan(doc *goquery.Document, raw *venueSet) (lt, ex *venueSet, err error) {
	lt = newVenueSet()
	ex = newVenueSet()
	for _, c := range []struct {
		label string
		dst   *venueSet
	}{
		{venueLabelLT, lt},
		{venueLabelEX, ex},
	} {
		var scanErr error
		doc.Find(fmt.Sprintf("td[data-label=%q]", c.label)).EachWithBreak(func(_ int, td *goquery.Selection) bool {
			name := strings.TrimSpace(td.Text())
			if name == "" || name == emptyVenueCell {
				return true
			}
			id, ok := raw.ids[name]
			if !ok {
				scanErr = fmt.Errorf("%w: %q", ErrVenueNotMapped, name)
				return false
			}
			c.dst.add(name, id)
			return true
		})
		if scanErr != nil {
			return nil, nil, scanErr
		}
	}
	return lt, ex, nil
}

// categorizeByPrefix splits the raw venue map by name: warrant pages have no
// overview table, but their LiveTrading venue names carry an "LT " prefix.
func categorizeByPrefix(raw *venueSet) (lt, ex *venueSet) {
	lt = newVenueSet()
	ex = newVenueSet()
	for _, name := range raw.order {
		if strings.HasPrefix(name, liveTradingPrefix) {
			lt.add(name, raw.ids[name])
		} else {
			ex.add(name, raw.ids[name])
		}
	}
	return lt, ex
}

// preferredNotation picks the notation id a caller should default to for one
// trading mode. A sole venue wins unconditionally. With several venues the
// mode's liquidity table decides: the venue with the most quotes wins, ties
// going to the earlier row. Without a liquidity table the configured
// fallback applies: the first venue in document order, or none.
func preferredNotation(doc *goquery.Document, venues *venueSet, label, fallback string) string {
	switch venues.len() {
	case 0:
		return ""
	case 1:
		return venues.first()
	}

	tbl := findLiquidityTable(doc, label)
	if tbl == nil {
		return fallbackNotation(venues, fallback)
	}

	headerIDs := headerNotationIDs(tbl)
	best := ""
	bestCount := -1
	tbl.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("td").First().AttrOr("data-label", ""))
		if name == "" || name == emptyVenueCell {
			return
		}
		id, ok := headerIDs[name]
		if !ok {
			return
		}
		count := parseQuoteCount(row.Find(fmt.Sprintf("td[data-label=%q]", label)).First().Text())
		if count > bestCount {
			bestCount = count
			best = id
		}
	})
	if best == "" {
		return fallbackNotation(venues, fallback)
	}
	return best
}

func fallbackNotation(venues *venueSet, fallback string) string {
	if fallback == config.PreferredFallbackFirst {
		return venues.first()
	}
	return ""
}

// findLiquidityTable returns the first table whose header cells mention the
// given column label, or nil when the page renders none.
func findLiquidityTable(doc *goquery.Document, label string) *goquery.Selection {
	var tbl *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		match := false
		t.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
			if strings.Contains(th.Text(), label) {
				match = true
				return false
			}
			return true
		})
		if match {
			tbl = t
			return false
		}
		return true
	})
	return tbl
}

// headerNotationIDs maps venue names to notation ids using the links embedded
// in a liquidity table's header cells. Each link target carries a plain
// ID_NOTATION query parameter.
func headerNotationIDs(tbl *goquery.Selection) map[string]string {
	ids := make(map[string]string)
	tbl.Find("th a[data-plugin]").Each(func(_ int, a *goquery.Selection) {
		m := notationIDPattern.FindStringSubmatch(a.AttrOr("data-plugin", ""))
		if m == nil {
			return
		}
		name := strings.TrimSpace(a.Text())
		if name != "" {
			ids[name] = m[1]
		}
	})
	return ids
}

// parseQuoteCount converts a German thousands-formatted count ("6.844") to an
// int. Unparsable cells count as zero so their venue still participates.
func parseQuoteCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
