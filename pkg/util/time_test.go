package util

import (
	"testing"
	"time"
)

func TestFormatSRT(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00,000"},
		{5 * time.Second, "00:00:05,000"},
		{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "01:02:03,045"},
		{-time.Second, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := FormatSRT(tc.in); got != tc.want {
			t.Errorf("FormatSRT(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	d, err := ParseTimestamp("00:01:02.500000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 62500*time.Millisecond {
		t.Errorf("got %v", d)
	}

	if _, err := ParseTimestamp("a:b"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}

func TestSecondsRounding(t *testing.T) {
	if got := Seconds(0.1 + 0.2); got != 300*time.Millisecond {
		t.Errorf("Seconds(0.1+0.2) = %v", got)
	}
	if got := FormatSeconds(1500 * time.Millisecond); got != "1.500" {
		t.Errorf("FormatSeconds = %q", got)
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := ParseFrameRate("30000/1001"); got < 29.96 || got > 29.98 {
		t.Errorf("got %f", got)
	}
	if got := ParseFrameRate("0/0"); got != 0 {
		t.Errorf("got %f", got)
	}
}
