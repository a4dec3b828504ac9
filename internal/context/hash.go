package ctxengine

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the first 8 hex characters of the xxhash64 digest of s.
// It is for cache debugging, not integrity.
func Hash(s string) string {
	return format(xxhash.Sum64String(s))
}

// hashConcat is Hash(a + b) without building the concatenation.
func hashConcat(a, b string) string {
	d := xxhash.New()
	_, _ = d.WriteString(a)
	_, _ = d.WriteString(b)
	return format(d.Sum64())
}

func format(sum uint64) string {
	return fmt.Sprintf("%08x", uint32(sum>>32))
}
