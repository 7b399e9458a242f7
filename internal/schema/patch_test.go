package schema

import (
	"errors"
	"testing"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchesSequential(t *testing.T) {
	out, err := ApplyPatches("a-b-c", []PatchRule{
		Rule(`a-`, "x-"),
		Rule(`x-b`, "y"),
	})
	require.NoError(t, err)
	assert.Equal(t, "y-c", out)
}

func TestApplyPatchesNoRulesIsIdentity(t *testing.T) {
	out, err := ApplyPatches("unchanged", nil)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}

func TestApplyPatchesRequiresExactlyOneMatch(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		matches string
	}{
		{"zero matches", "nothing here", "found 0"},
		{"two matches", "foo foo", "found 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ApplyPatches(tt.source, []PatchRule{Rule(`foo`, "bar")})
			require.Error(t, err)
			assert.Empty(t, out)
			assert.True(t, errors.Is(err, errx.ErrSchemaPatch))
			assert.Contains(t, err.Error(), tt.matches)
			assert.Contains(t, err.Error(), tt.source)
		})
	}
}

func TestApplyPatchesFailureNamesRuleIndex(t *testing.T) {
	_, err := ApplyPatches("abc", []PatchRule{
		Rule(`a`, "z"),
		Rule(`a`, "y"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch rule 1")
	assert.Contains(t, err.Error(), "zbc")
}

func TestApplyPatchesLiteralReplacement(t *testing.T) {
	out, err := ApplyPatches("price", []PatchRule{Rule(`(price)`, "$1 in $")})
	require.NoError(t, err)
	assert.Equal(t, "$1 in $", out)
}

func TestPatchPortsRejectsStatic(t *testing.T) {
	_, err := PatchPorts("Chain", Ports(Port{Type: Main}), []PatchRule{Rule(`main`, "x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrUnexpectedSchemaShape)
	assert.Contains(t, err.Error(), "[Chain]")
}

func TestPatchPortsAttributesNode(t *testing.T) {
	_, err := PatchPorts("Chain", Expr(`["main"]`), []PatchRule{Rule(`missing`, "x")})
	require.Error(t, err)
	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Chain", e.Node)
}
