package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidIdentifier marks a malformed caller-supplied instrument
// identifier, rejected before any upstream request is made.
var ErrInvalidIdentifier = errors.New("invalid instrument identifier")

// WKNs are six characters from the uppercase alphanumerics minus I and O
// (the issuer reserves those to avoid confusion with 1 and 0).
var wknPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{6}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("wkn", func(fl validator.FieldLevel) bool {
		return ValidWKN(fl.Field().String())
	})
	_ = v.RegisterValidation("isin_code", func(fl validator.FieldLevel) bool {
		return ValidISIN(fl.Field().String())
	})
	return v
}

// ValidWKN reports whether s is a well-formed WKN.
func ValidWKN(s string) bool {
	return wknPattern.MatchString(s)
}

// ValidISIN reports whether s passes the ISIN checksum: every letter expands
// to its alphabet position plus nine (A=10 .. Z=35), the resulting digit
// string is checked with the usual double-every-second-digit-from-the-right
// rule, and the total must divide by ten.
func ValidISIN(s string) bool {
	if len(s) != 12 {
		return false
	}
	digits := make([]int, 0, 2*len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r >= 'A' && r <= 'Z':
			n := int(r-'A') + 10
			digits = append(digits, n/10, n%10)
		default:
			return false
		}
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

var alnumPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// CheckIdentifier validates a caller-supplied instrument identifier before
// any upstream request is made. Inputs shaped like a WKN (six alphanumerics)
// must satisfy the WKN rule and inputs shaped like an ISIN (twelve
// alphanumerics) must pass the checksum; anything else is accepted untouched
// as a free-text search term, since the upstream search also takes names and
// ticker symbols.
func CheckIdentifier(id string) error {
	upper := strings.ToUpper(strings.TrimSpace(id))
	if upper == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	switch {
	case len(upper) == 6 && alnumPattern.MatchString(upper):
		if !ValidWKN(upper) {
			return fmt.Errorf("%w: malformed WKN %q, letters I and O are not used", ErrInvalidIdentifier, id)
		}
	case len(upper) == 12 && alnumPattern.MatchString(upper):
		if !ValidISIN(upper) {
			return fmt.Errorf("%w: ISIN %q fails its checksum", ErrInvalidIdentifier, id)
		}
	}
	return nil
}
