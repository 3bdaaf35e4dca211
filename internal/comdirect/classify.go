package comdirect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// ErrUnknownAssetClass marks a search redirect whose path does not point at
// any instrument family we know. The API maps it to 404; it is never retried
// because the redirect target will not change between immediate attempts.
var ErrUnknownAssetClass = errors.New("unknown asset class")

// segmentClasses resolves the family segment of a detail page path. A detail
// URL looks like /inf/aktien/detail/uebersicht.html, so the class sits at
// path segment index 2 counting the empty lead of an absolute path.
var segmentClasses = map[string]model.AssetClass{
	"aktien":         model.ClassStock,
	"anleihen":       model.ClassBond,
	"etfs":           model.ClassETF,
	"fonds":          model.ClassFund,
	"optionsscheine": model.ClassWarrant,
	"zertifikate":    model.ClassCertificate,
	"indizes":        model.ClassIndex,
	"rohstoffe":      model.ClassCommodity,
	"waehrungen":     model.ClassCurrency,
}

// ClassifyURL maps the final post-redirect URL of a search to an asset class.
func ClassifyURL(u *url.URL) (model.AssetClass, error) {
	parts := strings.Split(u.Path, "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: path %q too short", ErrUnknownAssetClass, u.Path)
	}
	class, ok := segmentClasses[parts[2]]
	if !ok {
		return "", fmt.Errorf("%w: segment %q in %q", ErrUnknownAssetClass, parts[2], u.Path)
	}
	return class, nil
}

// DefaultNotation reads the notation id the redirect pinned the page to.
// Empty when the target page carries none (some special classes omit it).
func DefaultNotation(u *url.URL) string {
	return u.Query().Get("ID_NOTATION")
}
