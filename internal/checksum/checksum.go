// Package checksum provides deterministic fingerprints for URLs and other
// strings so they can be indexed as integers instead of raw text.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// Fingerprint returns a 60-bit integer derived from the md5 digest of text.
// The value is the first 15 hex characters of the digest parsed base-16,
// which always fits in a signed 64-bit column. Empty input yields 0.
//
// Fever clients and the stored schema both depend on this exact derivation,
// so it must never change.
func Fingerprint(text string) int64 {
	if text == "" {
		return 0
	}
	sum := md5.Sum([]byte(text))
	v, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:15], 16, 64)
	if err != nil {
		// 15 hex chars are 60 bits; ParseInt cannot overflow or fail here.
		return 0
	}
	return v
}

// Combined fingerprints the concatenation of title and url. Used for the
// title_url_checksum column on extracted links.
func Combined(title, url string) int64 {
	if title == "" && url == "" {
		return 0
	}
	return Fingerprint(title + url)
}
