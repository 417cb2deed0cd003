package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

func TestFieldsProjector(t *testing.T) {
	e := core.Entity{
		"kind": "Component",
		"metadata": map[string]any{
			"name":        "svc",
			"namespace":   "prod",
			"annotations": map[string]any{"owner": "x"},
		},
		"spec":      map[string]any{"type": "service", "tags": []any{"a", "b"}},
		"relations": []any{map[string]any{"type": "ownedBy", "targetRef": "group:default/a"}},
	}

	t.Run("KeepsPaths", func(t *testing.T) {
		out, err := FieldsProjector("kind", "metadata.name", "spec.tags")(e)
		require.NoError(t, err)
		assert.Equal(t, core.Entity{
			"kind":     "Component",
			"metadata": map[string]any{"name": "svc"},
			"spec":     map[string]any{"tags": []any{"a", "b"}},
		}, out)
	})

	t.Run("MissingPathsSkipped", func(t *testing.T) {
		out, err := FieldsProjector("metadata.title", " kind ")(e)
		require.NoError(t, err)
		assert.Equal(t, core.Entity{"kind": "Component"}, out)
	})

	t.Run("WholeSubtree", func(t *testing.T) {
		out, err := FieldsProjector("metadata")(e)
		require.NoError(t, err)
		assert.Equal(t, e["metadata"], out["metadata"])
		assert.Len(t, out, 1)
	})

	t.Run("NoPaths", func(t *testing.T) {
		out, err := FieldsProjector("", "  ")(e)
		require.NoError(t, err)
		assert.Equal(t, e, out)
	})
}
