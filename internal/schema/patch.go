package schema

import (
	"regexp"
	"strings"

	errx "github.com/langfuse-nodes/server/internal/core/error"
)

// PatchRule replaces the single match of Pattern with Replacement.
// Replacement is spliced literally; capture references are not expanded.
type PatchRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Rule compiles pattern into a PatchRule. It panics on an invalid pattern,
// so rule tables fail at package initialisation.
func Rule(pattern, replacement string) PatchRule {
	return PatchRule{Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// ApplyPatches applies rules in order, each against the output of the previous one.
// Every rule must match exactly once; on failure no partially patched text is returned.
func ApplyPatches(source string, rules []PatchRule) (string, error) {
	text := source
	for i, r := range rules {
		locs := r.Pattern.FindAllStringIndex(text, -1)
		if len(locs) != 1 {
			return "", errx.SchemaPatch(i, r.Pattern.String(), len(locs), text)
		}
		start, end := locs[0][0], locs[0][1]
		var b strings.Builder
		b.Grow(len(text) - (end - start) + len(r.Replacement))
		b.WriteString(text[:start])
		b.WriteString(r.Replacement)
		b.WriteString(text[end:])
		text = b.String()
	}
	return text, nil
}

// PatchPorts patches an expression PortSpec. Static port lists cannot be patched.
func PatchPorts(node string, spec PortSpec, rules []PatchRule) (PortSpec, error) {
	if !spec.IsExpression() {
		return PortSpec{}, errx.UnexpectedSchemaShape(node, "expression text", "static port list "+spec.String())
	}
	patched, err := ApplyPatches(spec.Expression, rules)
	if err != nil {
		if e, ok := err.(*errx.Error); ok {
			return PortSpec{}, e.WithNode(node)
		}
		return PortSpec{}, err
	}
	return Expr(patched), nil
}
