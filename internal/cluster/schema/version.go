// Package schema tracks versioned collection schemas across the cluster:
// change detection between versions, a registry of current and historical
// versions per collection, and a propagator that fans a new version out to
// every other node with bounded concurrency and retry.
package schema

import (
	"fmt"
	"reflect"
	"time"
)

// Version is a monotonically increasing schema version number, starting
// at 1 for a collection's first registered schema.
type Version uint64

// Next returns the next version after v.
func (v Version) Next() Version { return v + 1 }

// IsNewerThan reports whether v is strictly greater than other.
func (v Version) IsNewerThan(other Version) bool { return v > other }

func (v Version) String() string { return fmt.Sprintf("v%d", uint64(v)) }

// ChangeType classifies one detected difference between two schema
// versions.
type ChangeType string

const (
	ChangeFieldAdded                ChangeType = "field_added"
	ChangeFieldRemoved              ChangeType = "field_removed"
	ChangeFieldTypeChanged          ChangeType = "field_type_changed"
	ChangeFieldMadeRequired         ChangeType = "field_made_required"
	ChangeFieldMadeOptional         ChangeType = "field_made_optional"
	ChangeIndexAdded                ChangeType = "index_added"
	ChangeIndexRemoved              ChangeType = "index_removed"
	ChangeIndexSettingsChanged      ChangeType = "index_settings_changed"
	ChangeBackendConfigChanged      ChangeType = "backend_config_changed"
	ChangeCollectionSettingsChanged ChangeType = "collection_settings_changed"
)

// IsBreaking reports whether a change of this type requires coordinated
// migration before every node can safely apply it.
func (c ChangeType) IsBreaking() bool {
	switch c {
	case ChangeFieldRemoved, ChangeFieldTypeChanged, ChangeFieldMadeRequired, ChangeIndexRemoved:
		return true
	default:
		return false
	}
}

// IsAdditive reports whether a change of this type is backward compatible
// and can be applied immediately without coordination.
func (c ChangeType) IsAdditive() bool {
	switch c {
	case ChangeFieldAdded, ChangeFieldMadeOptional, ChangeIndexAdded:
		return true
	default:
		return false
	}
}

// Change is one detected difference between two schema versions.
type Change struct {
	Type        ChangeType
	Path        string
	OldValue    any
	NewValue    any
	Description string
}

// IsBreaking reports whether this change requires coordinated migration.
func (c Change) IsBreaking() bool { return c.Type.IsBreaking() }

// VersionedSchema is one collection's schema content at a specific
// version, with the changes that produced it from the prior version.
type VersionedSchema struct {
	Collection string
	Version    Version
	Schema     any
	CreatedAt  time.Time
	CreatedBy  string
	Changes    []Change
	Metadata   map[string]string
}

// NewVersionedSchema constructs a versioned schema stamped with the
// current time.
func NewVersionedSchema(collection string, version Version, content any, createdBy string) VersionedSchema {
	return VersionedSchema{
		Collection: collection,
		Version:    version,
		Schema:     content,
		CreatedAt:  time.Now(),
		CreatedBy:  createdBy,
		Metadata:   make(map[string]string),
	}
}

// WithChanges attaches the changes that produced this version.
func (v VersionedSchema) WithChanges(changes []Change) VersionedSchema {
	v.Changes = changes
	return v
}

// WithMetadata attaches one metadata key/value pair.
func (v VersionedSchema) WithMetadata(key, value string) VersionedSchema {
	if v.Metadata == nil {
		v.Metadata = make(map[string]string)
	}
	v.Metadata[key] = value
	return v
}

// HasBreakingChanges reports whether any recorded change is breaking.
func (v VersionedSchema) HasBreakingChanges() bool {
	for _, c := range v.Changes {
		if c.IsBreaking() {
			return true
		}
	}
	return false
}

// BreakingChanges returns every breaking change in this version.
func (v VersionedSchema) BreakingChanges() []Change {
	out := make([]Change, 0)
	for _, c := range v.Changes {
		if c.IsBreaking() {
			out = append(out, c)
		}
	}
	return out
}

// AdditiveChanges returns every additive change in this version.
func (v VersionedSchema) AdditiveChanges() []Change {
	out := make([]Change, 0)
	for _, c := range v.Changes {
		if c.Type.IsAdditive() {
			out = append(out, c)
		}
	}
	return out
}

// DetectChanges compares old and new schema content (each a tree of
// map[string]any/[]any/scalars, the shape produced by decoding YAML or
// JSON into `any`) and returns every difference found, with dotted paths
// identifying the changed element (e.g. "backends.text.fields").
func DetectChanges(old, new any, path string) []Change {
	changes := make([]Change, 0)
	detectChangesRecursive(old, new, path, &changes)
	return changes
}

func detectChangesRecursive(old, new any, path string, changes *[]Change) {
	oldMap, oldIsMap := asMap(old)
	newMap, newIsMap := asMap(new)

	if oldIsMap && newIsMap {
		for key := range oldMap {
			if _, ok := newMap[key]; !ok {
				fieldPath := joinPath(path, key)
				*changes = append(*changes, Change{
					Type:        ChangeFieldRemoved,
					Path:        fieldPath,
					OldValue:    oldMap[key],
					Description: fmt.Sprintf("Field %q was removed", key),
				})
			}
		}

		for key, newValue := range newMap {
			fieldPath := joinPath(path, key)
			oldValue, existed := oldMap[key]
			if !existed {
				*changes = append(*changes, Change{
					Type:        ChangeFieldAdded,
					Path:        fieldPath,
					NewValue:    newValue,
					Description: fmt.Sprintf("Field %q was added", key),
				})
				continue
			}
			if reflect.DeepEqual(oldValue, newValue) {
				continue
			}
			_, oldValueIsMap := asMap(oldValue)
			_, newValueIsMap := asMap(newValue)
			if oldValueIsMap && newValueIsMap {
				detectChangesRecursive(oldValue, newValue, fieldPath, changes)
				continue
			}
			*changes = append(*changes, Change{
				Type:        ChangeFieldTypeChanged,
				Path:        fieldPath,
				OldValue:    oldValue,
				NewValue:    newValue,
				Description: fmt.Sprintf("Field %q was changed", key),
			})
		}
		return
	}

	if !reflect.DeepEqual(old, new) {
		*changes = append(*changes, Change{
			Type:        ChangeFieldTypeChanged,
			Path:        path,
			OldValue:    old,
			NewValue:    new,
			Description: "Value changed",
		})
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
