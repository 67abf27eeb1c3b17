package domain

import (
	"net/url"
	"regexp"
	"strings"
)

var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NormalizeURL canonicalizes a source URL for duplicate detection: scheme and
// host lowercased, fragment stripped, path and query preserved as-is. Returns
// an empty string for anything that does not parse as an absolute URL.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}

// NormalizeContentHash lowercases a SHA-256 hex digest and validates its
// shape. Anything that is not 64 lowercase hex characters is treated as
// absent rather than rejected.
func NormalizeContentHash(hash string) string {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !contentHashPattern.MatchString(hash) {
		return ""
	}
	return hash
}
