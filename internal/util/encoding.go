package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization so that visually identical
// credentials entered on different platforms compare equal.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeEmail lowercases and normalizes an email address for use as an
// account lookup key.
func NormalizeEmail(s string) string {
	return strings.ToLower(Normalize(strings.TrimSpace(s)))
}
