package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

func TestPrepare(t *testing.T) {
	doc := core.Entity{
		"kind":     "Group",
		"metadata": map[string]any{"name": "Team-A", "uid": "uid-1"},
		"spec":     map[string]any{"type": "team"},
	}

	t.Run("Defaults", func(t *testing.T) {
		p, err := Prepare(Record{Entity: doc})
		require.NoError(t, err)
		assert.Equal(t, "uid-1", p.EntityID)
		assert.Equal(t, "group:default/team-a", p.EntityRef)
		assert.JSONEq(t, `{"kind":"Group","metadata":{"name":"Team-A","uid":"uid-1"},"spec":{"type":"team"}}`, string(p.FinalEntity))
		assert.Contains(t, p.Facts, core.Fact{Key: "spec.type", Value: "team"})
		assert.Contains(t, p.Facts, core.Fact{Key: "metadata.namespace", Value: "default"})
	})

	t.Run("GeneratedID", func(t *testing.T) {
		p, err := Prepare(Record{Entity: core.Entity{"kind": "Group", "metadata": map[string]any{"name": "x"}}})
		require.NoError(t, err)
		_, err = uuid.Parse(p.EntityID)
		assert.NoError(t, err)
	})

	t.Run("ExplicitValuesWin", func(t *testing.T) {
		p, err := Prepare(Record{
			EntityID:  "id-9",
			EntityRef: "Group:Prod/X",
			Entity:    doc,
			Raw:       []byte(`{"kind":"Group"}`),
			Facts:     []core.Fact{{Key: "Owner", Value: "A"}, {Key: "owner", Value: "a"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "id-9", p.EntityID)
		assert.Equal(t, "group:prod/x", p.EntityRef)
		assert.Equal(t, `{"kind":"Group"}`, string(p.FinalEntity))
		assert.Equal(t, []core.Fact{{Key: "owner", Value: "a"}}, p.Facts)
	})

	t.Run("Unprocessed", func(t *testing.T) {
		p, err := Prepare(Record{EntityID: "a", EntityRef: "component:default/a"})
		require.NoError(t, err)
		assert.Nil(t, p.FinalEntity)
		assert.Empty(t, p.Facts)

		_, err = Prepare(Record{EntityID: "a"})
		assert.Error(t, err)
	})

	t.Run("MissingName", func(t *testing.T) {
		_, err := Prepare(Record{Entity: core.Entity{"kind": "Group"}})
		assert.ErrorIs(t, err, core.ErrDeserialization)
	})
}
