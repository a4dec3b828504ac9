package ctxengine

import (
	"cmp"
	"slices"
)

// globalEvictionOrder is the layer precedence used once every layer fits
// its own budget but the total still exceeds TotalLimit.
var globalEvictionOrder = []Layer{LayerRetrieved, LayerSettings, LayerRules, LayerImmediate}

// enforcer applies a Budget to layered fragments, recording evidence.
type enforcer struct {
	estimator  TokenEstimator
	compressor Compressor
	budget     Budget
	evidence   BudgetEvidence
}

// run fits every layer to its budget (compress, then evict) and then the
// total to TotalLimit. layers is modified in place.
func (e *enforcer) run(layers map[Layer][]Fragment) error {
	required := 0
	for _, l := range Layers {
		for _, f := range layers[l] {
			if f.Required {
				required += f.EstimatedTokens
			}
		}
	}
	if required > e.budget.TotalLimit {
		return &AssemblyError{RequiredTokens: required, TotalLimit: e.budget.TotalLimit}
	}

	for _, l := range Layers {
		layers[l] = e.fitLayer(l, layers[l])
	}

	total := 0
	for _, l := range Layers {
		total += sumTokens(layers[l])
	}
	for total > e.budget.TotalLimit {
		evicted := false
		for _, l := range globalEvictionOrder {
			idx := nextVictim(layers[l])
			if idx < 0 {
				continue
			}
			victim := layers[l][idx]
			e.evidence.remove(victim)
			layers[l] = slices.Delete(layers[l], idx, idx+1)
			total -= victim.EstimatedTokens
			evicted = true
			break
		}
		if !evicted {
			return &AssemblyError{RequiredTokens: total, TotalLimit: e.budget.TotalLimit}
		}
	}
	return nil
}

func (e *enforcer) fitLayer(layer Layer, frags []Fragment) []Fragment {
	limit := e.budget.LayerBudgets.For(layer)
	if sumTokens(frags) <= limit {
		return frags
	}

	if e.compressor != nil {
		frags = e.compressLayer(frags, limit)
	}

	for sumTokens(frags) > limit {
		idx := nextVictim(frags)
		if idx < 0 {
			// Only required fragments remain; the layer budget is soft.
			break
		}
		e.evidence.remove(frags[idx])
		frags = slices.Delete(frags, idx, idx+1)
	}
	return frags
}

// compressLayer shrinks every compressible fragment above an equal share
// of the layer budget.
func (e *enforcer) compressLayer(frags []Fragment, limit int) []Fragment {
	n := 0
	for _, f := range frags {
		if compressible(f) {
			n++
		}
	}
	if n == 0 {
		return frags
	}
	target := limit / n
	if target <= 0 {
		return frags
	}
	for i, f := range frags {
		if !compressible(f) || f.EstimatedTokens <= target {
			continue
		}
		out, ok := e.compressor.Compress(f, target, e.estimator)
		if !ok {
			continue
		}
		e.evidence.compress(f, out)
		frags[i] = out
	}
	return frags
}

// nextVictim returns the index of the non-required fragment to evict
// first: lowest priority, and among equal priorities the greatest id.
// It returns -1 when every fragment is required.
func nextVictim(frags []Fragment) int {
	victim := -1
	for i, f := range frags {
		if f.Required {
			continue
		}
		if victim < 0 || evictsBefore(f, frags[victim]) {
			victim = i
		}
	}
	return victim
}

func evictsBefore(a, b Fragment) bool {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c < 0
	}
	return a.ID > b.ID
}

func sumTokens(frags []Fragment) int {
	n := 0
	for _, f := range frags {
		n += f.EstimatedTokens
	}
	return n
}
