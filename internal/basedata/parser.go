package basedata

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// classParser extracts the identity fields and venue notations of one asset
// class's detail page. RequiresRefetch reports whether the page must be
// fetched a second time with an explicit ID_NOTATION before the venue data
// renders.
type classParser interface {
	ParseName(doc *goquery.Document) (string, error)
	ParseWKN(doc *goquery.Document) (string, error)
	ParseISIN(doc *goquery.Document) (string, error)
	ParseNotations(doc *goquery.Document, preferredFallback string) (*Notations, error)
	RequiresRefetch() bool
}

// standardParser covers every asset class except warrants. The special
// classes (index, commodity, currency) share it with a reduced field set: no
// ISIN, no venues, and the WKN one token further into the heading.
type standardParser struct {
	class model.AssetClass
}

func (p *standardParser) RequiresRefetch() bool { return false }

func (p *standardParser) ParseName(doc *goquery.Document) (string, error) {
	return extractName(doc, p.class)
}

func (p *standardParser) ParseWKN(doc *goquery.Document) (string, error) {
	idx := 1
	if p.class.IsSpecial() {
		idx = 2
	}
	return extractHeaderToken(doc, idx)
}

func (p *standardParser) ParseISIN(doc *goquery.Document) (string, error) {
	if p.class.IsSpecial() {
		return "", nil
	}
	isin, err := extractHeaderToken(doc, 3)
	if err != nil || len(isin) != isinLength {
		// heading layout drifted; the labelled form is the second source
		return extractISINAfterLabel(doc), nil
	}
	return isin, nil
}

func (p *standardParser) ParseNotations(doc *goquery.Document, preferredFallback string) (*Notations, error) {
	n := emptyNotations()
	if p.class.IsSpecial() {
		return n, nil
	}
	raw := collectSelectorOptions(doc)
	if raw.len() == 0 {
		raw = collectSingleVenue(doc)
	}
	if raw.len() == 0 {
		return n, nil
	}
	lt, ex, err := categorizeByScan(doc, raw)
	if err != nil {
		return nil, err
	}
	n.LifeTrading = lt.ids
	n.Exchange = ex.ids
	n.PreferredLT = preferredNotation(doc, lt, liquidityLabelLT, preferredFallback)
	n.PreferredEX = preferredNotation(doc, ex, liquidityLabelEX, preferredFallback)
	return n, nil
}

// warrantParser handles Optionsschein pages. Their venue selector only
// renders once the detail page is refetched with an explicit ID_NOTATION,
// there is no venue overview table (trading modes are told apart by the
// "LT " name prefix), and the ISIN only appears behind its label.
type warrantParser struct{}

func (p *warrantParser) RequiresRefetch() bool { return true }

func (p *warrantParser) ParseName(doc *goquery.Document) (string, error) {
	return extractName(doc, model.ClassWarrant)
}

func (p *warrantParser) ParseWKN(doc *goquery.Document) (string, error) {
	return extractHeaderToken(doc, 1)
}

func (p *warrantParser) ParseISIN(doc *goquery.Document) (string, error) {
	return extractISINAfterLabel(doc), nil
}

func (p *warrantParser) ParseNotations(doc *goquery.Document, preferredFallback string) (*Notations, error) {
	n := emptyNotations()
	raw := collectSelectorOptions(doc)
	if raw.len() == 0 {
		return n, nil
	}
	lt, ex := categorizeByPrefix(raw)
	n.LifeTrading = lt.ids
	n.Exchange = ex.ids
	n.PreferredLT = preferredNotation(doc, lt, liquidityLabelLT, preferredFallback)
	n.PreferredEX = preferredNotation(doc, ex, liquidityLabelEX, preferredFallback)
	return n, nil
}

var classParsers = map[model.AssetClass]classParser{
	model.ClassStock:       &standardParser{class: model.ClassStock},
	model.ClassBond:        &standardParser{class: model.ClassBond},
	model.ClassETF:         &standardParser{class: model.ClassETF},
	model.ClassFund:        &standardParser{class: model.ClassFund},
	model.ClassCertificate: &standardParser{class: model.ClassCertificate},
	model.ClassWarrant:     &warrantParser{},
	model.ClassIndex:       &standardParser{class: model.ClassIndex},
	model.ClassCommodity:   &standardParser{class: model.ClassCommodity},
	model.ClassCurrency:    &standardParser{class: model.ClassCurrency},
}

func parserFor(class model.AssetClass) (classParser, error) {
	p, ok := classParsers[class]
	if !ok {
		return nil, fmt.Errorf("no parser registered for asset class %q", class)
	}
	return p, nil
}
