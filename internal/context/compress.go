package ctxengine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CompressionMarker is appended to truncated content.
const CompressionMarker = "…"

// compressedSuffix is appended to the id of a compressed fragment.
const compressedSuffix = "#compressed"

// Compressor shrinks a fragment so its estimate fits target tokens.
// It returns false when no useful shorter version exists, leaving the
// fragment to eviction. Implementations must not block.
type Compressor interface {
	Compress(f Fragment, target int, estimator TokenEstimator) (Fragment, bool)
}

// TruncateCompressor keeps the longest prefix (on a rune boundary) that,
// followed by CompressionMarker, fits the target.
type TruncateCompressor struct{}

var _ Compressor = TruncateCompressor{}

// Compress implements Compressor.
func (TruncateCompressor) Compress(f Fragment, target int, estimator TokenEstimator) (Fragment, bool) {
	if target <= 0 || f.EstimatedTokens <= target {
		return f, false
	}

	// Byte offsets of rune starts; cuts[i] is the end of an i-rune prefix.
	cuts := make([]int, 0, utf8.RuneCountInString(f.Content)+1)
	for i := range f.Content {
		cuts = append(cuts, i)
	}
	cuts = append(cuts, len(f.Content))

	render := func(n int) string {
		return strings.TrimRightFunc(f.Content[:cuts[n]], unicode.IsSpace) + CompressionMarker
	}

	// Largest n in [1, len(cuts)-1) whose rendering fits.
	lo, hi, best := 1, len(cuts)-2, 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if estimator.Estimate(render(mid)) <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == 0 {
		return f, false
	}

	out := f
	out.ID = f.ID + compressedSuffix
	out.Content = render(best)
	out.EstimatedTokens = estimator.Estimate(out.Content)
	return out, true
}

// compressible reports whether eviction may be preceded by compression.
func compressible(f Fragment) bool {
	return f.Layer == LayerSettings && !f.Required
}
