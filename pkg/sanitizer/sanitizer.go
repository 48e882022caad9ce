// Package sanitizer normalizes user input before it is validated or stored.
// Transforms are plain func(T) T values chained with Apply or Compose.
package sanitizer

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	dotRegex        = regexp.MustCompile(`\.+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
)

// Apply runs transforms left to right.
func Apply[T any](value T, transforms ...func(T) T) T {
	for _, transform := range transforms {
		value = transform(value)
	}
	return value
}

// Compose builds a reusable pipeline.
func Compose[T any](transforms ...func(T) T) func(T) T {
	return func(value T) T {
		return Apply(value, transforms...)
	}
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveControlChars drops control characters except newline, carriage return and tab.
func RemoveControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// SingleLine collapses every whitespace run, line breaks included, into one space.
func SingleLine(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// StripHTML removes tags and unescapes entities.
func StripHTML(s string) string {
	return html.UnescapeString(htmlTagRegex.ReplaceAllString(s, ""))
}

// MaxLength truncates to maxLen characters.
func MaxLength(maxLen int) func(string) string {
	return func(s string) string {
		runes := []rune(s)
		if maxLen < 0 || len(runes) <= maxLen {
			return s
		}
		return string(runes[:maxLen])
	}
}

// NormalizeEmail lower-cases, trims and collapses repeated dots in the local
// part. Values that are not shaped like an address are returned trimmed.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return email
	}
	local = strings.Trim(dotRegex.ReplaceAllString(local, "."), ".")
	return local + "@" + domain
}

// NormalizeURL trims, defaults the scheme to https, lower-cases the host and
// drops a bare trailing slash. Unparseable input is returned trimmed.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
