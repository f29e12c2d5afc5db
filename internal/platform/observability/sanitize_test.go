package observability

import (
	"strings"
	"testing"
)

func TestSanitizeRouteStripsControlCharacters(t *testing.T) {
	got := SanitizeRoute("/api/v1/checkout\r\n/sessions\x1b[31m")
	if got != "/api/v1/checkout/sessions[31m" {
		t.Fatalf("unexpected sanitised route %q", got)
	}
}

func TestSanitizeRouteEmptyDefaultsToRoot(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected /, got %q", got)
	}
}

func TestSanitizeRouteTruncatesLongValues(t *testing.T) {
	got := SanitizeRoute("/" + strings.Repeat("a", 400))
	if len(got) != maxRouteRunes {
		t.Fatalf("expected %d runes, got %d", maxRouteRunes, len(got))
	}
}

func TestSanitizeMethodClipsLength(t *testing.T) {
	if got := SanitizeMethod(strings.Repeat("G", 32)); len(got) != maxMethodRunes {
		t.Fatalf("expected %d runes, got %d", maxMethodRunes, len(got))
	}
	if got := SanitizeMethod("GET"); got != "GET" {
		t.Fatalf("expected GET, got %q", got)
	}
}
