package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// CleanLabel trims the label and collapses inner whitespace. This is the form sent to the backend.
func CleanLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// NormalizeLabel normalizes a label for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizeLabel(label string) string {
	label = RemoveDiacritics(label)
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, "-", " ")
	return CleanLabel(label)
}

// ContainsLabel reports whether any of labels equals label after normalization.
func ContainsLabel(labels []string, label string) bool {
	want := NormalizeLabel(label)
	for _, l := range labels {
		if NormalizeLabel(l) == want {
			return true
		}
	}
	return false
}
