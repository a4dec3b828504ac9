package knowledge

import "log/slog"

// Project bundles every knowledge source of one project.
type Project struct {
	Layout     Layout
	Rules      *RuleStore
	Settings   *DocumentStore
	Characters *DocumentStore
	Skills     *SkillStore
}

// OpenProject creates the stores for the project rooted at root. Nothing is
// read until the first Get.
func OpenProject(root string, logger *slog.Logger) *Project {
	layout := NewLayout(root)
	return &Project{
		Layout:     layout,
		Rules:      NewRuleStore(layout, logger),
		Settings:   NewSettingsStore(layout, logger),
		Characters: NewCharacterStore(layout, logger),
		Skills:     NewSkillStore(layout, logger),
	}
}

// Invalidate drops the cache of one source only. It reports whether kind
// maps to a cached source.
func (p *Project) Invalidate(kind SourceKind) bool {
	switch kind {
	case SourceRules:
		p.Rules.Invalidate()
	case SourceSettings:
		p.Settings.Invalidate()
	case SourceCharacters:
		p.Characters.Invalidate()
	case SourceSkills:
		p.Skills.Invalidate()
	default:
		return false
	}
	return true
}
