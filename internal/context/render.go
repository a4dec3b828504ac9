package ctxengine

import (
	"cmp"
	"slices"
	"strings"
)

// TemplateVersionMarker closes every system prompt; bump it whenever the
// section grammar changes so cached prefixes are not reused across versions.
const TemplateVersionMarker = "<!-- writenow-context-template: v1 -->"

// MemoryPlaceholder is the token inside the system prompt template that the
// injected memory block replaces.
const MemoryPlaceholder = "{{WRITENOW_MEMORY}}"

const emptySection = "(none)"

// renderSystemPrompt renders the stable prefix template. It must only depend
// on the skill and the rules layer.
func renderSystemPrompt(skill Skill, rules []Fragment) string {
	var b strings.Builder

	b.WriteString("# Skill: ")
	if skill.Name != "" {
		b.WriteString(skill.Name)
		b.WriteString(" (")
		b.WriteString(skill.ID)
		b.WriteString(")")
	} else {
		b.WriteString(skill.ID)
	}
	b.WriteString("\n\n# Rules\n")
	if len(rules) == 0 {
		b.WriteString("\n" + emptySection + "\n")
	}
	for _, f := range rules {
		b.WriteString("\n## ")
		b.WriteString(sectionTitle(f))
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(f.Content))
		b.WriteString("\n")
	}

	b.WriteString("\n# Memory\n\n")
	b.WriteString(MemoryPlaceholder)
	b.WriteString("\n\n# Output\n")
	if len(skill.OutputConstraints) == 0 && skill.OutputFormat == "" {
		b.WriteString("\n" + emptySection + "\n")
	}
	if len(skill.OutputConstraints) > 0 {
		b.WriteString("\n")
		for _, c := range skill.OutputConstraints {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	if skill.OutputFormat != "" {
		b.WriteString("\nFormat: ")
		b.WriteString(skill.OutputFormat)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(TemplateVersionMarker)
	b.WriteString("\n")
	return b.String()
}

// injectMemory substitutes the memory block into the placeholder. Notes are
// rendered sorted by id so store order never changes the prefix.
func injectMemory(prompt string, notes []MemoryNote) string {
	block := emptySection
	if len(notes) > 0 {
		sorted := slices.Clone(notes)
		slices.SortFunc(sorted, func(a, b MemoryNote) int { return cmp.Compare(a.ID, b.ID) })
		lines := make([]string, len(sorted))
		for i, n := range sorted {
			lines[i] = n.String()
		}
		block = strings.Join(lines, "\n")
	}
	return strings.Replace(prompt, MemoryPlaceholder, block, 1)
}

// renderUserContent renders the per-request suffix: settings, retrieved and
// immediate sections in that order, then the raw user instruction.
func renderUserContent(settings, retrieved, immediate []Fragment, instruction string) string {
	var b strings.Builder
	b.WriteString("# Context (dynamic)\n")

	section := func(title string, frags []Fragment) {
		b.WriteString("\n## ")
		b.WriteString(title)
		b.WriteString("\n")
		n := 0
		for _, f := range frags {
			if f.ID == UserInstructionID {
				continue
			}
			b.WriteString("\n### ")
			b.WriteString(sectionTitle(f))
			b.WriteString("\n\n")
			b.WriteString(strings.TrimSpace(f.Content))
			b.WriteString("\n")
			n++
		}
		if n == 0 {
			b.WriteString("\n" + emptySection + "\n")
		}
	}
	section("Settings", settings)
	section("Retrieved", retrieved)
	section("Immediate", immediate)

	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}

func sectionTitle(f Fragment) string {
	switch {
	case f.Layer == LayerRules && f.Source.Path != "":
		return strings.TrimPrefix(f.Source.Path, "rules/")
	case f.Source.Path != "":
		return f.Source.Path
	case f.Source.ID != "":
		return f.Source.ID
	}
	return f.LocalID()
}
