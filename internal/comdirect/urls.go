package comdirect

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

const (
	searchPath  = "/inf/search/all.html"
	historyPath = "/inf/kursdaten/historic.csv"
)

// detailPaths maps an asset class to its detail page. Warrants nest one
// level deeper than everything else.
var detailPaths = map[model.AssetClass]string{
	model.ClassStock:       "/inf/aktien/detail/uebersicht.html",
	model.ClassBond:        "/inf/anleihen/detail/uebersicht.html",
	model.ClassETF:         "/inf/etfs/detail/uebersicht.html",
	model.ClassFund:        "/inf/fonds/detail/uebersicht.html",
	model.ClassWarrant:     "/inf/optionsscheine/detail/uebersicht/uebersicht.html",
	model.ClassCertificate: "/inf/zertifikate/detail/uebersicht.html",
	model.ClassIndex:       "/inf/indizes/detail/uebersicht.html",
	model.ClassCommodity:   "/inf/rohstoffe/detail/uebersicht.html",
	model.ClassCurrency:    "/inf/waehrungen/detail/uebersicht.html",
}

// SearchURL builds the instrument search URL. The server answers with a
// redirect to the matching detail page.
func SearchURL(baseURL, searchValue string) string {
	q := url.Values{}
	q.Set("SEARCH_VALUE", searchValue)
	return baseURL + searchPath + "?" + q.Encode()
}

// DetailURL builds a detail page URL pinned to one venue's notation id.
func DetailURL(baseURL string, class model.AssetClass, searchValue, idNotation string) (string, error) {
	path, ok := detailPaths[class]
	if !ok {
		return "", fmt.Errorf("no detail path for asset class %q", class)
	}
	q := url.Values{}
	q.Set("SEARCH_VALUE", searchValue)
	if idNotation != "" {
		q.Set("ID_NOTATION", idNotation)
	}
	return baseURL + path + "?" + q.Encode(), nil
}

// HistoryQuery carries one page request against the CSV export endpoint.
type HistoryQuery struct {
	IDNotation string
	Start      time.Time
	End        time.Time
	Interval   string // INTERVALL code, see the history package
	Offset     int
}

// HistoryURL builds the CSV export URL. The endpoint wants the range twice:
// as unix seconds and as formatted day strings.
func HistoryURL(baseURL string, hq HistoryQuery) string {
	q := url.Values{}
	q.Set("DATETIME_TZ_START_RANGE", strconv.FormatInt(hq.Start.Unix(), 10))
	q.Set("DATETIME_TZ_END_RANGE", strconv.FormatInt(hq.End.Unix(), 10))
	q.Set("DATETIME_TZ_START_RANGE_FORMATED", hq.Start.Format("02.01.2006"))
	q.Set("DATETIME_TZ_END_RANGE_FORMATED", hq.End.Format("02.01.2006"))
	q.Set("ID_NOTATION", hq.IDNotation)
	q.Set("INTERVALL", hq.Interval)
	q.Set("WITH_EARNINGS", "false")
	q.Set("OFFSET", strconv.Itoa(hq.Offset))
	return baseURL + historyPath + "?" + q.Encode()
}
