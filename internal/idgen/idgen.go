// Package idgen generates identifiers for scoring runs and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// WithPrefix generates a random ID with a prefix, e.g. "req_".
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	return prefix + randomHex(12)
}

// Sortable generates prefix + 12 hex chars of Unix milliseconds + 12 random
// hex chars. IDs minted later compare greater as strings, down to the
// millisecond.
func Sortable(prefix string, t time.Time) string {
	ms := t.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%s%012x%s", prefix, ms&0xffffffffffff, randomHex(6))
}

// Time recovers the timestamp embedded by Sortable.
func Time(prefix, id string) (time.Time, error) {
	if len(id) != len(prefix)+24 || id[:len(prefix)] != prefix {
		return time.Time{}, fmt.Errorf("idgen: %q is not a sortable %q id", id, prefix)
	}
	var ms int64
	if _, err := fmt.Sscanf(id[len(prefix):len(prefix)+12], "%012x", &ms); err != nil {
		return time.Time{}, fmt.Errorf("idgen: %q: %w", id, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func randomHex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
