package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass is the instrument category comdirect assigns to a search
// result. The values are the site's German display labels; they appear
// verbatim in page headings and in our JSON output.
type AssetClass string

const (
	ClassStock       AssetClass = "Aktie"
	ClassBond        AssetClass = "Anleihe"
	ClassETF         AssetClass = "ETF"
	ClassFund        AssetClass = "Fonds"
	ClassWarrant     AssetClass = "Optionsschein"
	ClassCertificate AssetClass = "Zertifikat"
	ClassIndex       AssetClass = "Index"
	ClassCommodity   AssetClass = "Rohstoff"
	ClassCurrency    AssetClass = "Währung"
)

// IsSpecial reports whether the class belongs to the reduced-markup family:
// no ISIN, one extra leading token in the page heading, no venue tables.
func (a AssetClass) IsSpecial() bool {
	switch a {
	case ClassIndex, ClassCommodity, ClassCurrency:
		return true
	}
	return false
}

// IsStandard reports whether the class carries WKN+ISIN in the predictable
// header positions and exposes venue/notation tables.
func (a AssetClass) IsStandard() bool {
	switch a {
	case ClassStock, ClassBond, ClassETF, ClassFund, ClassWarrant, ClassCertificate:
		return true
	}
	return false
}

// SupportsQuotes reports whether the detail page renders a bid/ask table we
// know how to read. Quote lookups for any other class are rejected with 501.
func (a AssetClass) SupportsQuotes() bool {
	return a == ClassStock || a == ClassWarrant
}

// Symbolic id_notation aliases accepted wherever an explicit numeric
// notation id is accepted.
const (
	AliasDefault           = "default_id_notation"
	AliasPreferredLife     = "preferred_id_notation_life_trading"
	AliasPreferredExchange = "preferred_id_notation_exchange_trading"
)

// ErrInvalidNotation marks a caller-supplied id_notation that does not
// resolve for the instrument. The API maps it to 400.
var ErrInvalidNotation = errors.New("invalid id_notation for instrument")

// Instrument is the master record assembled from one instrument detail page.
type Instrument struct {
	Name       string     `json:"name" validate:"required"`
	WKN        string     `json:"wkn" validate:"required,wkn"`
	ISIN       string     `json:"isin,omitempty" validate:"omitempty,isin_code"`
	Symbol     string     `json:"symbol,omitempty"`
	AssetClass AssetClass `json:"asset_class" validate:"required"`

	// Venue display name -> notation id, split by trading mode. The default
	// notation comes from the redirect URL and may match neither preferred id.
	DefaultIDNotation      string            `json:"default_id_notation,omitempty"`
	IDNotationsLifeTrading map[string]string `json:"id_notations_life_trading"`
	IDNotationsExchange    map[string]string `json:"id_notations_exchange_trading"`
	PreferredIDNotationLT  string            `json:"preferred_id_notation_life_trading,omitempty"`
	PreferredIDNotationEX  string            `json:"preferred_id_notation_exchange_trading,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Validate checks the assembled record against the identifier rules.
func (i *Instrument) Validate() error {
	return validate.Struct(i)
}

// ResolveNotation turns an id_notation query value into a concrete numeric
// notation id. Empty input falls back to the default notation; the three
// symbolic aliases map to their fields; an explicit id must be the default
// or present in one of the venue maps.
func (i *Instrument) ResolveNotation(param string) (string, error) {
	switch param {
	case "", AliasDefault:
		if i.DefaultIDNotation == "" {
			return "", fmt.Errorf("%w: no default notation known for %s", ErrInvalidNotation, i.WKN)
		}
		return i.DefaultIDNotation, nil
	case AliasPreferredLife:
		if i.PreferredIDNotationLT == "" {
			return "", fmt.Errorf("%w: no preferred life-trading notation for %s", ErrInvalidNotation, i.WKN)
		}
		return i.PreferredIDNotationLT, nil
	case AliasPreferredExchange:
		if i.PreferredIDNotationEX == "" {
			return "", fmt.Errorf("%w: no preferred exchange notation for %s", ErrInvalidNotation, i.WKN)
		}
		return i.PreferredIDNotationEX, nil
	}

	if param == i.DefaultIDNotation {
		return param, nil
	}
	for _, id := range i.IDNotationsLifeTrading {
		if id == param {
			return param, nil
		}
	}
	for _, id := range i.IDNotationsExchange {
		if id == param {
			return param, nil
		}
	}
	return "", fmt.Errorf("%w: %q not among the notations of %s", ErrInvalidNotation, param, i.WKN)
}

// VenueFor returns the display name of the venue trading under the given
// notation id, searching both maps. Empty when the id is not mapped (the
// default notation is not always listed on the page).
func (i *Instrument) VenueFor(idNotation string) string {
	for venue, id := range i.IDNotationsLifeTrading {
		if id == idNotation {
			return venue
		}
	}
	for venue, id := range i.IDNotationsExchange {
		if id == idNotation {
			return venue
		}
	}
	return ""
}

// Quote is one bid/ask observation scraped from a detail page.
type Quote struct {
	WKN           string          `json:"wkn"`
	Name          string          `json:"name"`
	AssetClass    AssetClass      `json:"asset_class"`
	IDNotation    string          `json:"id_notation"`
	Venue         string          `json:"venue,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	SpreadPercent decimal.Decimal `json:"spread_percent"`
	QuotedAt      time.Time       `json:"quoted_at"`
}

// Candle is one OHLCV row from the history CSV export.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// HistorySeries is the assembled response for one history request.
type HistorySeries struct {
	WKN        string     `json:"wkn"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
	IDNotation string     `json:"id_notation"`
	Venue      string     `json:"venue,omitempty"`
	Interval   string     `json:"interval"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Candles    []Candle   `json:"candles"`
}
