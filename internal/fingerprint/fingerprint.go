// Package fingerprint derives the short content fingerprint used to name log
// records.
package fingerprint

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Length is the number of hex characters kept from the digest (24 bits).
const Length = 6

// Sum returns the first Length hex characters of the BLAKE3 digest of
// project, timestamp and log concatenated without separators.
//
// The result is short enough to type but not unique: callers must treat it
// as a lookup key, never as a primary key.
func Sum(project, timestamp string, log []byte) string {
	h := blake3.New(32, nil)
	h.Write([]byte(project))
	h.Write([]byte(timestamp))
	h.Write(log)
	return hex.EncodeToString(h.Sum(nil))[:Length]
}

// Valid reports whether s could be a fingerprint or a prefix of one.
func Valid(s string) bool {
	if len(s) > Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
