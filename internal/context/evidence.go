package ctxengine

// Removal records a fragment evicted to satisfy a budget.
type Removal struct {
	FragmentID string `json:"fragmentId"`
	Layer      Layer  `json:"layer"`
}

// Compression records a fragment replaced by a shorter version.
type Compression struct {
	FromFragmentID string `json:"fromFragmentId"`
	ToFragmentID   string `json:"toFragmentId"`
	FromTokens     int    `json:"fromTokens"`
	ToTokens       int    `json:"toTokens"`
}

// BudgetEvidence lists, in the order they happened, the compressions and
// evictions performed by one assembly.
type BudgetEvidence struct {
	Removed    []Removal     `json:"removed"`
	Compressed []Compression `json:"compressed"`
}

func newEvidence() BudgetEvidence {
	return BudgetEvidence{Removed: []Removal{}, Compressed: []Compression{}}
}

func (e *BudgetEvidence) remove(f Fragment) {
	e.Removed = append(e.Removed, Removal{FragmentID: f.ID, Layer: f.Layer})
}

func (e *BudgetEvidence) compress(from, to Fragment) {
	e.Compressed = append(e.Compressed, Compression{
		FromFragmentID: from.ID,
		ToFragmentID:   to.ID,
		FromTokens:     from.EstimatedTokens,
		ToTokens:       to.EstimatedTokens,
	})
}
