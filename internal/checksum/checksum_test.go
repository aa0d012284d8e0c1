package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"testing"
)

func TestFingerprint_Empty(t *testing.T) {
	if got := Fingerprint(""); got != 0 {
		t.Errorf("Fingerprint(\"\") = %d, want 0", got)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("https://example.com/feed.rss")
	b := Fingerprint("https://example.com/feed.rss")
	if a != b {
		t.Errorf("Fingerprint not deterministic: %d != %d", a, b)
	}
}

func TestFingerprint_FitsIn60Bits(t *testing.T) {
	inputs := []string{
		"https://example.com/feed.rss",
		"https://news.ycombinator.com/rss",
		"a",
		"some much longer string with spaces and unicode: éèê",
	}
	for _, in := range inputs {
		v := Fingerprint(in)
		if v < 0 || v >= 1<<60 {
			t.Errorf("Fingerprint(%q) = %d, outside [0, 2^60)", in, v)
		}
	}
}

func TestFingerprint_MatchesMD5Prefix(t *testing.T) {
	in := "https://example.com/item-1"
	sum := md5.Sum([]byte(in))
	want, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:15], 16, 64)
	if err != nil {
		t.Fatalf("ParseInt: %v", err)
	}
	if got := Fingerprint(in); got != want {
		t.Errorf("Fingerprint(%q) = %d, want %d", in, got, want)
	}
}

func TestFingerprint_DifferentInputsDiffer(t *testing.T) {
	if Fingerprint("https://a.example") == Fingerprint("https://b.example") {
		t.Error("distinct URLs should not collide in practice")
	}
}

func TestCombined(t *testing.T) {
	if got := Combined("", ""); got != 0 {
		t.Errorf("Combined(\"\", \"\") = %d, want 0", got)
	}
	if Combined("Title", "https://example.com") != Fingerprint("Titlehttps://example.com") {
		t.Error("Combined should fingerprint the concatenation")
	}
}
