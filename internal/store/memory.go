package store

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"entity-loader/internal/common"
	"entity-loader/internal/schema"
)

// MemoryStore keeps records in memory and enforces the constraints a
// database would: unique attributes, maximum lengths and required
// attributes. It is safe for concurrent use.
type MemoryStore struct {
	reg *schema.Registry

	mu     sync.RWMutex
	tables map[string]*memTable
	links  map[string][]map[string]any
	newID  func() string
}

type memTable struct {
	rows []*Record
}

// NewMemoryStore returns an empty store for the entity types of reg.
func NewMemoryStore(reg *schema.Registry) *MemoryStore {
	s := &MemoryStore{
		reg:    reg,
		tables: make(map[string]*memTable),
		links:  make(map[string][]map[string]any),
		newID:  func() string { return uuid.New().String() },
	}

	for _, name := range reg.Names() {
		s.tables[name] = &memTable{}
	}

	return s
}

func (s *MemoryStore) table(entity string) (*memTable, *schema.EntityType, error) {
	t, ok := s.tables[entity]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	et, _ := s.reg.Describe(entity)

	return t, et, nil
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, entity string, c Criteria) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, _, err := s.table(entity)
	if err != nil {
		return nil, err
	}

	for _, rec := range t.rows {
		if c.Matches(rec) {
			return rec.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%s %v: %w", entity, map[string]any(c), ErrNotFound)
}

// FindMany implements Store.
func (s *MemoryStore) FindMany(_ context.Context, entity string, c Criteria) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, _, err := s.table(entity)
	if err != nil {
		return nil, err
	}

	var out []*Record

	for _, rec := range t.rows {
		if c.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}

	return out, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, et, err := s.table(rec.Entity)
	if err != nil {
		return err
	}

	if err := s.check(t, et, rec, ""); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = s.newID()
	}

	t.rows = append(t.rows, rec.Clone())

	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, et, err := s.table(rec.Entity)
	if err != nil {
		return err
	}

	for i, existing := range t.rows {
		if existing.ID != rec.ID {
			continue
		}

		if err := s.check(t, et, rec, rec.ID); err != nil {
			return err
		}

		t.rows[i] = rec.Clone()

		return nil
	}

	return fmt.Errorf("%s %s: %w", rec.Entity, rec.ID, ErrNotFound)
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, entity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, _, err := s.table(entity)
	if err != nil {
		return err
	}

	for i, rec := range t.rows {
		if rec.ID == id {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// check enforces attribute constraints on rec. self is the id of the row
// being replaced, which is exempt from the unique checks.
func (s *MemoryStore) check(t *memTable, et *schema.EntityType, rec *Record, self string) error {
	for _, a := range et.Attributes() {
		v, set := rec.Attrs[a.Name]

		if a.Required && (!set || v == nil) {
			return fmt.Errorf("%s.%s: %w", et.Name, a.Name, ErrNotNull)
		}

		if str, ok := v.(string); ok && a.MaxLength > 0 && utf8.RuneCountInString(str) > a.MaxLength {
			return fmt.Errorf("%s.%s (%d > %d): %w",
				et.Name, a.Name, utf8.RuneCountInString(str), a.MaxLength, ErrValueTooLong)
		}

		if !a.Unique || v == nil {
			continue
		}

		for _, other := range t.rows {
			if other.ID != self && common.ValuesEqual(other.Attrs[a.Name], v) {
				return fmt.Errorf("%s.%s=%v: %w", et.Name, a.Name, v, ErrUniqueViolation)
			}
		}
	}

	return nil
}

// Associations implements Store.
func (s *MemoryStore) Associations(_ context.Context, rel schema.RelationDescriptor, ownerID string) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Link

	for _, row := range s.links[rel.AssociationTable] {
		if row[rel.OwnerKey] != ownerID {
			continue
		}

		link := Link{RelatedID: row[rel.RelatedKey].(string), Attrs: make(map[string]any)}
		for _, a := range rel.PivotAttributes {
			if v, ok := row[a.Name]; ok {
				link.Attrs[a.Name] = v
			}
		}

		out = append(out, link)
	}

	return out, nil
}

// Attach implements Store.
func (s *MemoryStore) Attach(_ context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.linkIndex(rel, ownerID, relatedID) >= 0 {
		return nil
	}

	row := map[string]any{rel.OwnerKey: ownerID, rel.RelatedKey: relatedID}
	for k, v := range attrs {
		row[k] = v
	}

	s.links[rel.AssociationTable] = append(s.links[rel.AssociationTable], row)

	return nil
}

// Detach implements Store.
func (s *MemoryStore) Detach(_ context.Context, rel schema.RelationDescriptor, ownerID, relatedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.linkIndex(rel, ownerID, relatedID)
	if i < 0 {
		return nil
	}

	rows := s.links[rel.AssociationTable]
	s.links[rel.AssociationTable] = append(rows[:i], rows[i+1:]...)

	return nil
}

// UpdatePivot implements Store.
func (s *MemoryStore) UpdatePivot(_ context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.linkIndex(rel, ownerID, relatedID)
	if i < 0 {
		return fmt.Errorf("%s %s/%s: %w", rel.AssociationTable, ownerID, relatedID, ErrNotFound)
	}

	for k, v := range attrs {
		s.links[rel.AssociationTable][i][k] = v
	}

	return nil
}

func (s *MemoryStore) linkIndex(rel schema.RelationDescriptor, ownerID, relatedID string) int {
	for i, row := range s.links[rel.AssociationTable] {
		if row[rel.OwnerKey] == ownerID && row[rel.RelatedKey] == relatedID {
			return i
		}
	}

	return -1
}

// Count returns the number of stored records of entity.
func (s *MemoryStore) Count(entity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[entity]; ok {
		return len(t.rows)
	}

	return 0
}
