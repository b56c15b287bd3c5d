package headers

import (
	"net/http/httptest"
	"testing"
)

func TestRequestSource_Get(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Shib-Session-Id", "_abc123")
	r.Header.Set("eppn", "jdoe@example.edu")

	src := NewRequestSource(r)
	if got := src.Get("Shib-Session-Id"); got != "_abc123" {
		t.Errorf("Get(Shib-Session-Id) = %q, want %q", got, "_abc123")
	}
	// Canonical header-name matching is case-insensitive.
	if got := src.Get("EPPN"); got != "jdoe@example.edu" {
		t.Errorf("Get(EPPN) = %q, want %q", got, "jdoe@example.edu")
	}
	if got := src.Get("absent"); got != "" {
		t.Errorf("Get(absent) = %q, want empty", got)
	}
}

func TestMapSource_Get(t *testing.T) {
	src := MapSource{"eppn": "jdoe"}
	if got := src.Get("eppn"); got != "jdoe" {
		t.Errorf("Get(eppn) = %q, want %q", got, "jdoe")
	}
	if got := src.Get("absent"); got != "" {
		t.Errorf("Get(absent) = %q, want empty", got)
	}
}
