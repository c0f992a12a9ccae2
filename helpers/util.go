package helpers

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LastPathSegment returns the final non-empty path segment of rawURL,
// ignoring any query string or fragment
func LastPathSegment(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "", errors.New("url has no path segment")
	}
	return last, nil
}

// Capitalize upper-cases the first letter and lower-cases the rest
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
