// ABOUTME: Phone number canonicalization and validation
// ABOUTME: Every number is reduced to "+<digits>" before lookup, comparison, or storage

package phone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a number does not canonicalize to "+" followed by 10-15 digits.
var ErrInvalid = errors.New("invalid phone number")

const (
	minDigits = 10
	maxDigits = 15
)

// Canonicalize strips everything except digits and prefixes the result with "+".
// It never fails; use Parse when the result must be a valid number.
// A leading international "00" dialing prefix is treated like "+".
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "00") {
		s = s[2:]
	}

	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte('+')
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Parse canonicalizes raw and checks the digit count.
func Parse(raw string) (string, error) {
	if !looksLikeNumber(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	c := Canonicalize(raw)
	n := len(c) - 1
	if n < minDigits || n > maxDigits {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalid, raw, n)
	}
	return c, nil
}

// Valid reports whether raw parses as a phone number.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// looksLikeNumber rejects strings containing letters so that names such as
// "Jane5551234567" are never mistaken for numbers.
func looksLikeNumber(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return false
		}
	}
	return true
}
