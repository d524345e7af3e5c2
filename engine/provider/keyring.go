package provider

import (
	"strings"
	"sync/atomic"
)

// KeyRing rotates API keys round-robin via a monotonically incremented
// counter. A race between readers may repeat or skip a key; it never loses
// one.
type KeyRing struct {
	keys []string
	next atomic.Uint64
}

// NewKeyRing builds a ring from a comma-separated key list, dropping empty
// segments.
func NewKeyRing(raw string) *KeyRing {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &KeyRing{keys: keys}
}

// Next returns the next key in rotation, or "" when none are configured.
func (r *KeyRing) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	n := r.next.Add(1) - 1
	return r.keys[n%uint64(len(r.keys))]
}

// Len reports the number of configured keys.
func (r *KeyRing) Len() int { return len(r.keys) }
