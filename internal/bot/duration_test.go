package bot

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"10m": 10 * time.Minute,
		"1h":  time.Hour,
		"1D":  24 * time.Hour,
		"28d": maxTimeout,
	}
	for input, want := range cases {
		got, err := parseDuration(input)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
		if got != want {
			t.Fatalf("%q: expected %s, got %s", input, want, got)
		}
	}
}

func TestParseDurationRejects(t *testing.T) {
	for _, input := range []string{"", "m", "10", "10w", "-5m", "0s", "1.5h", "abc"} {
		if _, err := parseDuration(input); !errors.Is(err, errBadDuration) {
			t.Fatalf("%q: expected errBadDuration, got %v", input, err)
		}
	}
	if _, err := parseDuration("29d"); !errors.Is(err, errLongDuration) {
		t.Fatalf("expected errLongDuration, got %v", err)
	}
}
