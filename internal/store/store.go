// Package store is the persistence port of the loader.
//
// The loader, the relation resolver and the pivot sync engine only talk to a
// Store. MemoryStore backs tests and dry runs; PostgresStore writes through a
// pgx pool. Records are addressed by entity type name and a string id.
package store

import (
	"context"
	"errors"
	"sort"

	"entity-loader/internal/common"
	"entity-loader/internal/schema"
)

// Sentinel errors. Implementations wrap them with the entity and attribute
// involved, so callers test with errors.Is.
var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrValueTooLong    = errors.New("value too long")
	ErrNotNull         = errors.New("null value in required attribute")
	ErrUnknownEntity   = errors.New("unknown entity type")
	ErrInvalidValue    = errors.New("invalid attribute value")
)

// Record is one stored entity. Attrs never holds the primary key; it lives
// in ID.
type Record struct {
	Entity string
	ID     string
	Attrs  map[string]any
}

// NewRecord returns an unsaved record of entity.
func NewRecord(entity string) *Record {
	return &Record{Entity: entity, Attrs: make(map[string]any)}
}

// Get returns an attribute value. The primary key is readable as "id".
func (r *Record) Get(name string) (any, bool) {
	if name == schema.PrimaryKey {
		return r.ID, r.ID != ""
	}

	v, ok := r.Attrs[name]

	return v, ok
}

// Set assigns an attribute value.
func (r *Record) Set(name string, v any) {
	if r.Attrs == nil {
		r.Attrs = make(map[string]any)
	}

	r.Attrs[name] = v
}

// IsNew reports whether the record has not been persisted yet.
func (r *Record) IsNew() bool {
	return r.ID == ""
}

// Clone returns a copy that shares no maps with r.
func (r *Record) Clone() *Record {
	c := &Record{Entity: r.Entity, ID: r.ID, Attrs: make(map[string]any, len(r.Attrs))}
	for k, v := range r.Attrs {
		c.Attrs[k] = v
	}

	return c
}

// Criteria matches records whose attributes equal every given value.
type Criteria map[string]any

// Keys returns the attribute names, sorted.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Matches reports whether rec satisfies c. Values compare loosely, so the
// string "7" matches a stored 7.
func (c Criteria) Matches(rec *Record) bool {
	for k, want := range c {
		got, _ := rec.Get(k)
		if !common.ValuesEqual(got, want) {
			return false
		}
	}

	return true
}

// Link is one row of a many-to-many association, seen from the owner.
type Link struct {
	RelatedID string
	Attrs     map[string]any
}

// Store is the storage collaborator of a run. Every call is synchronous.
type Store interface {
	// Find returns the first record matching c, or ErrNotFound.
	Find(ctx context.Context, entity string, c Criteria) (*Record, error)
	// FindMany returns every record matching c, in insertion order.
	FindMany(ctx context.Context, entity string, c Criteria) ([]*Record, error)
	// Insert persists a new record and assigns its ID.
	Insert(ctx context.Context, rec *Record) error
	// Update overwrites the attributes of an existing record.
	Update(ctx context.Context, rec *Record) error
	// Delete removes a record.
	Delete(ctx context.Context, entity, id string) error

	// Associations lists the links of ownerID through a many-to-many relation.
	Associations(ctx context.Context, rel schema.RelationDescriptor, ownerID string) ([]Link, error)
	// Attach links ownerID and relatedID. Attaching an existing link is a no-op.
	Attach(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error
	// Detach removes a link. Detaching a missing link is a no-op.
	Detach(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string) error
	// UpdatePivot overwrites association attributes of an existing link.
	UpdatePivot(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error
}
