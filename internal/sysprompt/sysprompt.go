// Package sysprompt holds the per-procedure-variant system prompt
// templates passed to the Agent Runner Adapter, grounded on the teacher's
// prompts store (named template storage, not generation logic) but kept
// as a compile-time registry rather than a database-backed store since
// these templates are fixed content, not user-editable records.
package sysprompt

// Variant selects which flavour of full-development prompt to use,
// chosen by the label-to-procedure mapping.
type Variant string

const (
	VariantDebugger    Variant = "debugger"
	VariantBuilder     Variant = "builder"
	VariantScoper       Variant = "scoper"
	VariantCoordinator Variant = "coordinator"
	VariantNone        Variant = "" // documentation-edit, simple-question
)

var templates = map[Variant]string{
	VariantDebugger: "You are investigating a reported bug. Reproduce it, find the root cause, " +
		"and fix it with the smallest change that addresses the cause, not just the symptom.",
	VariantBuilder: "You are implementing a feature or improvement. Build it end to end: " +
		"code, tests, and anything else a complete change requires.",
	VariantScoper: "You are scoping a product requirements document into actionable engineering " +
		"work. Do not write implementation code; produce a breakdown the team can act on.",
	VariantCoordinator: "You are coordinating delegated sub-sessions on other issues. Track their " +
		"progress and incorporate feedback from the orchestrator when it arrives.",
	VariantNone: "Answer the question or make the requested edit directly and concisely.",
}

// ForVariant returns the system prompt text for variant, falling back to
// the plain variant's prompt if variant is unrecognised.
func ForVariant(variant Variant) string {
	if text, ok := templates[variant]; ok {
		return text
	}
	return templates[VariantNone]
}

// ForLabels applies the label-to-procedure mapping: the issue's labels
// are inspected in order, and the first recognised label selects a
// variant. No recognised label yields VariantNone.
func ForLabels(labels []string) Variant {
	for _, label := range labels {
		switch label {
		case "Bug":
			return VariantDebugger
		case "Feature", "Improvement":
			return VariantBuilder
		case "PRD":
			return VariantScoper
		case "Orchestrator":
			return VariantCoordinator
		}
	}
	return VariantNone
}
