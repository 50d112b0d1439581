// Package fraud implements the normalization and HMAC hashing rules that
// let tenants share fraud indicators over the network without exposing
// raw PII.
package fraud

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidRoutingNumber = errors.New("fraud: routing number must normalize to exactly 9 digits")
	ErrAccountTooShort      = errors.New("fraud: account number must have at least 4 digits")
)

var (
	nonDigits      = regexp.MustCompile(`[^0-9]`)
	nonWordPunct   = regexp.MustCompile(`[^\w\s]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	businessSuffix = regexp.MustCompile(`\b(LLC|INC|CORP|CO|LTD|LP|LLP|PC|PLC|DBA|AKA)\b`)
)

// NormalizeRoutingNumber strips non-digits and requires exactly 9 digits.
func NormalizeRoutingNumber(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) != 9 {
		return "", ErrInvalidRoutingNumber
	}
	return digits, nil
}

// NormalizePayeeName upper-cases, strips Unicode combining marks and
// punctuation, removes whole-word business suffixes, and collapses
// whitespace. It is idempotent: NormalizePayeeName(NormalizePayeeName(x))
// == NormalizePayeeName(x).
func NormalizePayeeName(raw string) string {
	s := strings.ToUpper(raw)
	s = stripCombiningMarks(s)
	s = nonWordPunct.ReplaceAllString(s, " ")
	s = businessSuffix.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripCombiningMarks applies Unicode NFD decomposition and removes
// combining marks (e.g. "É" -> "E"), matching byte-exact reproducibility
// across input encodings.
func stripCombiningMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeAccountNumber strips non-digits and emits the privacy-preserving
// partial form "L{len}-{last4}". Input already in that form is returned
// unchanged, so the function is idempotent.
func NormalizeAccountNumber(raw string) (string, error) {
	if regexp.MustCompile(`^L[0-9]+-[0-9]{4}$`).MatchString(raw) {
		return raw, nil
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) < 4 {
		return "", ErrAccountTooShort
	}
	last4 := digits[len(digits)-4:]
	return "L" + itoa(len(digits)) + "-" + last4, nil
}

// NormalizeCheckNumber strips non-digits and strips leading zeros, but
// preserves "0" for all-zero input.
func NormalizeCheckNumber(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		if digits == "" {
			return ""
		}
		return "0"
	}
	return trimmed
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
