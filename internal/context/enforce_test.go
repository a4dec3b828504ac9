package ctxengine_test

import (
	"strings"
	"testing"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

func TestEnforce_TieBreakByID(t *testing.T) {
	t.Parallel()

	assembler := ctxengine.NewContextAssembler(lenEstimator{}, ctxengine.Config{})
	got, err := assembler.Assemble(ctxengine.Request{
		Budget: ctxengine.Budget{
			TotalLimit:   1000,
			LayerBudgets: ctxengine.LayerBudgets{Retrieved: 20, Immediate: 100},
		},
		Skill: testSkill(),
		Retrieved: []ctxengine.Fragment{
			ctxengine.RetrievedFragment("b", strings.Repeat("b", 10), 5),
			ctxengine.RetrievedFragment("c", strings.Repeat("c", 10), 5),
			ctxengine.RetrievedFragment("a", strings.Repeat("a", 10), 5),
		},
		UserInstruction: "go",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got.BudgetEvidence.Removed) != 1 || got.BudgetEvidence.Removed[0].FragmentID != "retrieved:c" {
		t.Fatalf("removed = %+v, want only retrieved:c", got.BudgetEvidence.Removed)
	}
	if got.BudgetEvidence.Removed[0].Layer != ctxengine.LayerRetrieved {
		t.Errorf("removal layer = %q", got.BudgetEvidence.Removed[0].Layer)
	}
	// Survivors keep priority-then-id order.
	var ids []string
	for _, f := range got.Fragments {
		if f.Layer == ctxengine.LayerRetrieved {
			ids = append(ids, f.ID)
		}
	}
	if strings.Join(ids, ",") != "retrieved:a,retrieved:b" {
		t.Errorf("retrieved order = %v", ids)
	}
}

func TestEnforce_LowestPriorityFirst(t *testing.T) {
	t.Parallel()

	assembler := ctxengine.NewContextAssembler(lenEstimator{}, ctxengine.Config{})
	got, err := assembler.Assemble(ctxengine.Request{
		Budget: ctxengine.Budget{
			TotalLimit:   1000,
			LayerBudgets: ctxengine.LayerBudgets{Retrieved: 25, Immediate: 100},
		},
		Skill: testSkill(),
		Retrieved: []ctxengine.Fragment{
			ctxengine.RetrievedFragment("p9", strings.Repeat("x", 10), 9),
			ctxengine.RetrievedFragment("p1", strings.Repeat("x", 10), 1),
			ctxengine.RetrievedFragment("p5", strings.Repeat("x", 10), 5),
		},
		UserInstruction: "go",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.BudgetEvidence.Removed) != 1 || got.BudgetEvidence.Removed[0].FragmentID != "retrieved:p1" {
		t.Errorf("removed = %+v, want retrieved:p1", got.BudgetEvidence.Removed)
	}
}

func TestEnforce_GlobalPrecedence(t *testing.T) {
	t.Parallel()

	// Every layer fits its own budget; only the total is exceeded.
	req := ctxengine.Request{
		Skill: testSkill(),
		Rules: []ctxengine.Fragment{
			ctxengine.RuleFragment("style.md", strings.Repeat("s", 10), "", 10),
		},
		Settings: []ctxengine.Fragment{
			ctxengine.SettingsFragment("settings/a.md", strings.Repeat("a", 10), "", 1),
		},
		Retrieved: []ctxengine.Fragment{
			ctxengine.RetrievedFragment("r", strings.Repeat("r", 10), 100),
		},
		Editor:          ctxengine.EditorContext{CurrentParagraph: strings.Repeat("p", 10)},
		UserInstruction: "go",
	}
	layers := ctxengine.LayerBudgets{Rules: 50, Settings: 50, Retrieved: 50, Immediate: 50}

	tests := []struct {
		limit       int
		wantRemoved []string
	}{
		{limit: 42, wantRemoved: nil},
		{limit: 41, wantRemoved: []string{"retrieved:r"}},
		{limit: 31, wantRemoved: []string{"retrieved:r", "settings:settings/a.md"}},
		{limit: 21, wantRemoved: []string{"retrieved:r", "settings:settings/a.md", "rules:style.md"}},
		{limit: 2, wantRemoved: []string{"retrieved:r", "settings:settings/a.md", "rules:style.md", "immediate:current-paragraph"}},
	}

	assembler := ctxengine.NewContextAssembler(lenEstimator{}, ctxengine.Config{})
	for _, tt := range tests {
		req.Budget = ctxengine.Budget{TotalLimit: tt.limit, LayerBudgets: layers}
		got, err := assembler.Assemble(req)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		var removed []string
		for _, r := range got.BudgetEvidence.Removed {
			removed = append(removed, r.FragmentID)
		}
		if strings.Join(removed, ",") != strings.Join(tt.wantRemoved, ",") {
			t.Errorf("limit %d: removed = %v, want %v", tt.limit, removed, tt.wantRemoved)
		}
	}
}

func TestEnforce_NoCompressorEvictsSettings(t *testing.T) {
	t.Parallel()

	assembler := ctxengine.NewContextAssembler(lenEstimator{}, ctxengine.Config{})
	assembler.SetCompressor(nil)
	got, err := assembler.Assemble(ctxengine.Request{
		Budget: ctxengine.Budget{
			TotalLimit:   1000,
			LayerBudgets: ctxengine.LayerBudgets{Settings: 10, Immediate: 100},
		},
		Skill:           testSkill(),
		Settings:        []ctxengine.Fragment{ctxengine.SettingsFragment("settings/a.md", strings.Repeat("a", 50), "", 1)},
		UserInstruction: "go",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.BudgetEvidence.Compressed) != 0 {
		t.Errorf("compressed = %+v, want none", got.BudgetEvidence.Compressed)
	}
	if !hasRemoval(got.BudgetEvidence, "settings:settings/a.md") {
		t.Errorf("removed = %+v", got.BudgetEvidence.Removed)
	}
}

func TestEnforce_StatsReflectLayerLimits(t *testing.T) {
	t.Parallel()

	assembler := ctxengine.NewContextAssembler(lenEstimator{}, ctxengine.Config{})
	budget := ctxengine.Budget{
		TotalLimit:   300,
		LayerBudgets: ctxengine.LayerBudgets{Rules: 11, Settings: 22, Retrieved: 33, Immediate: 44},
	}
	got, err := assembler.Assemble(ctxengine.Request{Budget: budget, Skill: testSkill(), UserInstruction: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range ctxengine.Layers {
		if got.TokenStats.PerLayer[l].Limit != budget.LayerBudgets.For(l) {
			t.Errorf("%s limit = %d", l, got.TokenStats.PerLayer[l].Limit)
		}
	}
	if got.TokenStats.PerLayer[ctxengine.LayerImmediate].Used != 3 || got.TokenStats.Total != (ctxengine.Usage{Used: 3, Limit: 300}) {
		t.Errorf("stats = %+v", got.TokenStats)
	}
}
