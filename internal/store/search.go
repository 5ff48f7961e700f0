// ABOUTME: Case-folded contact lookup shared by every Directory implementation
// ABOUTME: Uses Unicode case folding and NFC so "JOSÉ" finds "José"

package store

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// FoldName returns the comparison key for a display name.
func FoldName(name string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(name)))
}

// NormalizeName trims and NFC-normalizes a display name for storage.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}

// SearchContacts returns contacts whose name or phone number contains query,
// ignoring case. An empty query matches nothing.
func SearchContacts(ctx context.Context, dir Directory, query string) ([]*Contact, error) {
	q := FoldName(query)
	if q == "" {
		return nil, nil
	}

	all, err := dir.ListContacts(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Contact
	for _, c := range all {
		if strings.Contains(FoldName(c.Name), q) || strings.Contains(c.PhoneNumber, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindContactsByName returns contacts whose name equals name, ignoring case.
func FindContactsByName(ctx context.Context, dir Directory, name string) ([]*Contact, error) {
	key := FoldName(name)
	if key == "" {
		return nil, nil
	}

	all, err := dir.ListContacts(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Contact
	for _, c := range all {
		if FoldName(c.Name) == key {
			out = append(out, c)
		}
	}
	return out, nil
}
