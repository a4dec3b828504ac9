package ctxengine_test

import (
	"strings"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

// lenEstimator counts one token per byte, which keeps budget arithmetic in
// tests readable.
type lenEstimator struct{}

func (lenEstimator) Estimate(text string) int { return len(text) }

func testSkill() ctxengine.Skill {
	return ctxengine.Skill{
		ID:                "polish",
		Name:              "Polish",
		OutputConstraints: []string{"keep the author's voice"},
		OutputFormat:      "plain text",
	}
}

func testRules() []ctxengine.Fragment {
	return []ctxengine.Fragment{
		ctxengine.RuleFragment("style.md", "Prefer short sentences.", "d1", 10),
		ctxengine.RuleFragment("terminology.json", `{"terms":[{"term":"Aether"}]}`, "d2", 20),
		ctxengine.RuleFragment("constraints.json", `{"rules":["no anachronisms"]}`, "d3", 30),
	}
}

func generousBudget() ctxengine.Budget {
	return ctxengine.Budget{
		TotalLimit: 100000,
		LayerBudgets: ctxengine.LayerBudgets{
			Rules: 30000, Settings: 30000, Retrieved: 30000, Immediate: 30000,
		},
	}
}

func findFragment(frags []ctxengine.Fragment, id string) (ctxengine.Fragment, bool) {
	for _, f := range frags {
		if f.ID == id {
			return f, true
		}
	}
	return ctxengine.Fragment{}, false
}

func hasRemoval(ev ctxengine.BudgetEvidence, id string) bool {
	for _, r := range ev.Removed {
		if r.FragmentID == id {
			return true
		}
	}
	return false
}

func mustIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		panic("substring not found: " + sub)
	}
	return i
}
