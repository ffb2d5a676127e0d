// Package keys derives cache keys for catalog listings.
package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Catalog returns the cache key for a listing endpoint. Endpoints that differ
// only in surrounding whitespace, scheme/host case or a trailing slash share
// a key.
func Catalog(endpoint string) string {
	norm := normalizeEndpoint(endpoint)
	host := ""
	if u, err := url.Parse(norm); err == nil {
		host = sanitize(u.Host)
	}
	return fmt.Sprintf("catalog:%s:%016x", host, xxhash.Sum64String(norm))
}

func normalizeEndpoint(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		if !isAlphaNum(r) && r != '.' && r != '_' {
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
