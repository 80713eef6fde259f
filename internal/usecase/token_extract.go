package usecase

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Auth cookie names, newest first.
var authCookieNames = []string{"access-token", "bearer_token"}

var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Bearer\s+([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)`),
	regexp.MustCompile(`access-token["\s:]+([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)`),
	regexp.MustCompile(`["']Bearer%20([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)["']`),
	regexp.MustCompile(`authorization["\s:]+["']Bearer%20([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)["']`),
}

// ExtractToken picks the bearer token out of a solved session. It tries the
// auth cookies first, then inline scripts of the landing page, then the raw
// page. The second result names the strategy that matched.
func ExtractToken(cookies map[string]string, html string) (string, string) {
	for _, name := range authCookieNames {
		if token := cleanToken(cookies[name]); token != "" {
			return token, "cookie:" + name
		}
	}
	if html == "" {
		return "", ""
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		var token string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			token = matchToken(s.Text())
			return token == ""
		})
		if token != "" {
			return token, "script"
		}
	}
	if token := matchToken(html); token != "" {
		return token, "html"
	}
	return "", ""
}

func matchToken(text string) string {
	for _, re := range tokenPatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// cleanToken URL-decodes a cookie value and strips a "Bearer " prefix.
func cleanToken(raw string) string {
	if raw == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "Bearer ")
	return strings.TrimSpace(raw)
}
