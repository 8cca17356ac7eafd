package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion_Ordering(t *testing.T) {
	v1 := Version(1)
	v2 := Version(2)

	assert.True(t, v2.IsNewerThan(v1))
	assert.False(t, v1.IsNewerThan(v2))
	assert.Equal(t, v2, v1.Next())
}

func TestChangeType_Breaking(t *testing.T) {
	assert.True(t, ChangeFieldRemoved.IsBreaking())
	assert.True(t, ChangeFieldTypeChanged.IsBreaking())
	assert.True(t, ChangeFieldMadeRequired.IsBreaking())
	assert.False(t, ChangeFieldAdded.IsBreaking())
	assert.False(t, ChangeFieldMadeOptional.IsBreaking())
}

func TestDetectChanges_AddedField(t *testing.T) {
	old := map[string]any{"name": "test"}
	new := map[string]any{"name": "test", "description": "new field"}

	changes := DetectChanges(old, new, "")
	if assert.Len(t, changes, 1) {
		assert.Equal(t, ChangeFieldAdded, changes[0].Type)
		assert.Equal(t, "description", changes[0].Path)
	}
}

func TestDetectChanges_RemovedField(t *testing.T) {
	old := map[string]any{"name": "test", "description": "old field"}
	new := map[string]any{"name": "test"}

	changes := DetectChanges(old, new, "")
	if assert.Len(t, changes, 1) {
		assert.Equal(t, ChangeFieldRemoved, changes[0].Type)
		assert.True(t, changes[0].IsBreaking())
	}
}

func TestDetectChanges_Nested(t *testing.T) {
	old := map[string]any{
		"backends": map[string]any{
			"text": map[string]any{"fields": []any{"title"}},
		},
	}
	new := map[string]any{
		"backends": map[string]any{
			"text": map[string]any{"fields": []any{"title", "description"}},
		},
	}

	changes := DetectChanges(old, new, "")
	if assert.Len(t, changes, 1) {
		assert.Equal(t, "backends.text.fields", changes[0].Path)
	}
}

func TestVersionedSchema_ChangesSplit(t *testing.T) {
	schema := map[string]any{"collection": "products"}
	versioned := NewVersionedSchema("products", Version(1), schema, "node-1").
		WithChanges([]Change{{Type: ChangeFieldAdded, Path: "description", Description: "Added description field"}}).
		WithMetadata("author", "admin")

	assert.Equal(t, "products", versioned.Collection)
	assert.Equal(t, Version(1), versioned.Version)
	assert.False(t, versioned.HasBreakingChanges())
	assert.Equal(t, "admin", versioned.Metadata["author"])
}
