package observability

import (
	"strings"
	"unicode"
)

// Limits for request-derived log field values. Anything the client controls
// is clipped before it reaches the log stream.
const (
	maxRouteRunes  = 180
	maxMethodRunes = 10
	maxAddrRunes   = 64
)

// clipForLog removes control characters, newlines included, and truncates the
// value to limit runes.
func clipForLog(value string, limit int) string {
	var b strings.Builder
	b.Grow(len(value))
	kept := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		kept++
		if kept == limit {
			break
		}
	}
	return b.String()
}

// SanitizeRoute clips a route pattern for logging. An empty route normalises
// to "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clipForLog(route, maxRouteRunes)
}

// SanitizeMethod clips an HTTP method label for logging.
func SanitizeMethod(method string) string {
	return clipForLog(method, maxMethodRunes)
}
