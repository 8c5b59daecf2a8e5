// Package phone normalizes destination numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// ErrAmbiguousNumber marks a number that cannot be normalized without guessing.
var ErrAmbiguousNumber = fmt.Errorf("%w: ambiguous phone number", apperrors.ErrValidation)

const (
	minInternationalDigits = 8
	maxInternationalDigits = 15
)

// Normalize converts raw input into an E.164 string.
//
// Numbers without a leading "+" are read as NANP: ten digits gain "+1" and eleven digits
// starting with 1 gain "+". Input that already starts with "+" keeps its country code.
// Everything else is rejected with ErrAmbiguousNumber.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	digits := Digits(trimmed)

	if strings.HasPrefix(trimmed, "+") {
		if len(digits) < minInternationalDigits || len(digits) > maxInternationalDigits {
			return "", fmt.Errorf("%w: %q has %d digits", ErrAmbiguousNumber, raw, len(digits))
		}
		return "+" + digits, nil
	}

	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	case len(digits) == 0:
		return "", fmt.Errorf("%w: %q contains no digits", ErrAmbiguousNumber, raw)
	default:
		return "", fmt.Errorf("%w: %q is not a NANP number", ErrAmbiguousNumber, raw)
	}
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAmbiguous reports whether err came from Normalize rejecting a number.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguousNumber)
}
