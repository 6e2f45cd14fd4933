package acquire

import (
	"fmt"
	"net/url"
	"strings"
)

// filenameReplacer maps filesystem-hostile characters to a dash. The rule
// applies to any catalog-derived string used in a filename or header.
var filenameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	"?", "-",
	"%", "-",
	"*", "-",
	":", "-",
	"|", "-",
	"\"", "-",
	"<", "-",
	">", "-",
)

// Sanitize replaces filesystem-hostile characters with dashes.
func Sanitize(name string) string {
	return filenameReplacer.Replace(name)
}

// DeriveFilename builds the "<title> - <artist>" base name, sanitized.
func DeriveFilename(title, artist string) string {
	return Sanitize(fmt.Sprintf("%s - %s", title, artist))
}

// ContentDisposition renders the RFC 5987 attachment header value for the
// derived mp3 filename, percent-encoded.
func ContentDisposition(title, artist string) string {
	filename := DeriveFilename(title, artist) + ".mp3"
	return fmt.Sprintf("attachment; filename*=UTF-8''%s", percentEncode(filename))
}

// percentEncode escapes like encodeURIComponent: everything but RFC 3986
// unreserved characters plus a few component-safe marks.
func percentEncode(s string) string {
	escaped := url.QueryEscape(s)
	// QueryEscape uses + for spaces and escapes marks that are safe here.
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for raw, enc := range map[string]string{
		"!": "%21", "'": "%27", "(": "%28", ")": "%29", "*": "%2A",
	} {
		escaped = strings.ReplaceAll(escaped, enc, raw)
	}
	return escaped
}
