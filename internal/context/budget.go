package ctxengine

// TokenEstimator estimates the token count of a string. Implementations
// must be deterministic and monotonic in the length of text.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English; CJK prose is closer to 1.5.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for the given text.
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := float64(len(text)) / e.CharsPerToken
	// Always round up to avoid underestimation.
	return int(tokens) + 1
}

// LayerBudgets are the soft per-layer token ceilings.
type LayerBudgets struct {
	Rules     int `json:"rules" yaml:"rules"`
	Settings  int `json:"settings" yaml:"settings"`
	Retrieved int `json:"retrieved" yaml:"retrieved"`
	Immediate int `json:"immediate" yaml:"immediate"`
}

// For returns the ceiling for layer.
func (b LayerBudgets) For(layer Layer) int {
	switch layer {
	case LayerRules:
		return b.Rules
	case LayerSettings:
		return b.Settings
	case LayerRetrieved:
		return b.Retrieved
	case LayerImmediate:
		return b.Immediate
	}
	return 0
}

// Budget bounds an assembly. TotalLimit is hard; layer budgets are soft
// and may sum to more than TotalLimit.
type Budget struct {
	TotalLimit   int          `json:"totalLimit" yaml:"total_limit"`
	LayerBudgets LayerBudgets `json:"layerBudgets" yaml:"layer_budgets"`
}

// IsZero reports whether no budget was supplied.
func (b Budget) IsZero() bool {
	return b == Budget{}
}

// Validate rejects non-positive total limits and negative layer budgets.
func (b Budget) Validate() error {
	if b.TotalLimit <= 0 {
		return Errorf(CodeInvalidArgument, "budget: totalLimit must be positive, got %d", b.TotalLimit)
	}
	for _, l := range Layers {
		if v := b.LayerBudgets.For(l); v < 0 {
			return Errorf(CodeInvalidArgument, "budget: %s layer budget must not be negative, got %d", l, v)
		}
	}
	return nil
}

// DefaultBudget is used when neither the caller nor the configuration
// supplies one.
func DefaultBudget() Budget {
	return Budget{
		TotalLimit: 6000,
		LayerBudgets: LayerBudgets{
			Rules:     1500,
			Settings:  1500,
			Retrieved: 2000,
			Immediate: 2000,
		},
	}
}

// Usage is a used/limit token pair.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// TokenStats reports post-budget token usage. Only fragment tokens are
// counted; template headings and the memory block are not.
type TokenStats struct {
	PerLayer map[Layer]Usage `json:"perLayer"`
	Total    Usage           `json:"total"`
}

func computeStats(frags []Fragment, budget Budget) TokenStats {
	stats := TokenStats{
		PerLayer: make(map[Layer]Usage, len(Layers)),
		Total:    Usage{Limit: budget.TotalLimit},
	}
	for _, l := range Layers {
		stats.PerLayer[l] = Usage{Limit: budget.LayerBudgets.For(l)}
	}
	for _, f := range frags {
		u := stats.PerLayer[f.Layer]
		u.Used += f.EstimatedTokens
		stats.PerLayer[f.Layer] = u
		stats.Total.Used += f.EstimatedTokens
	}
	return stats
}
