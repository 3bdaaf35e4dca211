package basedata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// isinLength is the fixed length of an ISIN; the labeled extractor only
// accepts a token of exactly this length.
const isinLength = 12

// extractName reads the instrument name from the page's first h1 heading and
// strips the trailing asset-class label the site appends to it
// ("Siemens Aktie" -> "Siemens").
func extractName(doc *goquery.Document, class model.AssetClass) (string, error) {
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return "", errors.New("detail page carries no h1 heading")
	}
	text := strings.Join(strings.Fields(h1.Text()), " ")
	name := strings.TrimSpace(strings.TrimSuffix(text, " "+string(class)))
	if name == "" {
		return "", fmt.Errorf("h1 heading empty after stripping %q label", class)
	}
	return name, nil
}

// extractHeaderToken splits the first h2 heading on whitespace and returns
// the token at idx. WKN sits at index 1 for standard classes and index 2 for
// the special ones (their heading carries an extra leading word); ISIN sits
// at index 3 on standard pages.
func extractHeaderToken(doc *goquery.Document, idx int) (string, error) {
	h2 := doc.Find("h2").First()
	if h2.Length() == 0 {
		return "", errors.New("detail page carries no h2 heading")
	}
	fields := strings.Fields(h2.Text())
	if idx >= len(fields) {
		return "", fmt.Errorf("h2 heading has %d tokens, need index %d", len(fields), idx)
	}
	return fields[idx], nil
}

// extractISINAfterLabel reads the token following an explicit "ISIN:" label.
// Some layouts only carry the ISIN in that form. The token is accepted only
// at the exact ISIN length; anything else means absent, never an error.
func extractISINAfterLabel(doc *goquery.Document) string {
	h2 := doc.Find("h2").First()
	if h2.Length() == 0 {
		return ""
	}
	_, after, ok := strings.Cut(h2.Text(), "ISIN:")
	if !ok {
		return ""
	}
	fields := strings.Fields(after)
	if len(fields) == 0 || len(fields[0]) != isinLength {
		return ""
	}
	return fields[0]
}

// ExtractSymbol reads the ticker symbol from the "Aktieninformationen"
// section of a stock page: the td next to the th labelled "Symbol". Only
// stocks carry one; any lookup step failing yields an absent symbol rather
// than an error.
func ExtractSymbol(doc *goquery.Document, class model.AssetClass) string {
	if class != model.ClassStock {
		return ""
	}
	var symbol string
	doc.Find("h2, h3, caption").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.Contains(heading.Text(), "Aktieninformationen") {
			return true
		}
		heading.Parent().Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
			if strings.TrimSpace(th.Text()) != "Symbol" {
				return true
			}
			symbol = strings.TrimSpace(th.NextAllFiltered("td").First().Text())
			return false
		})
		return symbol == ""
	})
	return symbol
}
