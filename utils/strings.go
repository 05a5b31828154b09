package utils

import (
	"net/url"
	"strings"
	"unicode/utf16"
)

// Ellipsis marks truncated text
const Ellipsis = "…"

// HostLength counts s the way the host measures strings, in UTF-16 code
// units.
func HostLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Truncate limits s to limit UTF-16 code units, ending with an ellipsis
// when s is too long. Surrogate pairs are never split.
func Truncate(s string, limit int) string {
	if HostLength(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}

	budget := limit - HostLength(Ellipsis)
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > budget {
			return s[:i] + Ellipsis
		}
	}
	return s
}

// AbsoluteURL resolves ref against base. Absolute refs are returned as is.
func AbsoluteURL(base, ref string) string {
	if strings.Contains(ref, "://") || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
