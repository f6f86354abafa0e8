package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEndpointStatus_JSONShape(t *testing.T) {
	ts := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	msg := "connection refused"
	b, err := json.Marshal(EndpointStatus{URL: "https://b", IsUp: false, LastChecked: &ts, Error: &msg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"url"`, `"isUp"`, `"lastChecked"`, `"error"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("missing %s in %s", key, b)
		}
	}

	b, _ = json.Marshal(EndpointStatus{URL: "https://a", IsUp: true})
	if !strings.Contains(string(b), `"error":null`) || !strings.Contains(string(b), `"lastChecked":null`) {
		t.Fatalf("want null error/lastChecked, got %s", b)
	}
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		in      string
		wantErr error
	}{
		{"https://example.com", nil},
		{"  http://example.com/health  ", nil},
		{"", ErrEmptyURL},
		{"   ", ErrEmptyURL},
		{"ftp://example.com", ErrInvalidURL},
		{"example.com", ErrInvalidURL},
		{"https://", ErrInvalidURL},
	}
	for _, c := range cases {
		_, err := ValidateURL(c.in)
		if c.wantErr == nil && err != nil {
			t.Fatalf("ValidateURL(%q) unexpected err %v", c.in, err)
		}
		if c.wantErr != nil && !errors.Is(err, c.wantErr) {
			t.Fatalf("ValidateURL(%q) err=%v want %v", c.in, err, c.wantErr)
		}
	}
}

func TestParseInterval(t *testing.T) {
	if n, err := ParseInterval("5"); err != nil || n != 5 {
		t.Fatalf("want 5, got %d %v", n, err)
	}
	for _, in := range []string{"3", "4", "7.5", "abc", "", "-10"} {
		if _, err := ParseInterval(in); !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("ParseInterval(%q) err=%v", in, err)
		}
	}
}

func TestAddRemoveEndpoint(t *testing.T) {
	list, u, err := AddEndpoint(nil, " https://a ")
	if err != nil || u != "https://a" || len(list) != 1 {
		t.Fatalf("add: %v %q %v", list, u, err)
	}
	if _, _, err := AddEndpoint(list, "https://a"); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("want duplicate, got %v", err)
	}
	list, _, _ = AddEndpoint(list, "https://b")
	out, err := RemoveEndpoint(list, "https://a")
	if err != nil || len(out) != 1 || out[0] != "https://b" {
		t.Fatalf("remove: %v %v", out, err)
	}
	if len(list) != 2 {
		t.Fatalf("input list mutated: %v", list)
	}
	if _, err := RemoveEndpoint(out, "https://zzz"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("want unknown, got %v", err)
	}
}

func TestHasFailures(t *testing.T) {
	if HasFailures(nil) {
		t.Fatal("empty table has no failures")
	}
	if !HasFailures([]EndpointStatus{{URL: "a", IsUp: true}, {URL: "b"}}) {
		t.Fatal("want failure")
	}
}
