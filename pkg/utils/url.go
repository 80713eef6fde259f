package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashKey creates a SHA256 hash of a string, used for cache keys built from URLs.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ShortHash returns the first 8 hex characters of the MD5 digest of s.
// Pending-scrape keys use it so that they stay readable in redis-cli.
func ShortHash(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])[:8]
}

// JoinURL resolves ref against base. Absolute refs are returned unchanged and
// an empty ref yields an empty string.
func JoinURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(strings.TrimLeft(ref, "/"))
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
