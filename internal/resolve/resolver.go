// Package resolve finds, and on demand creates, the related entity a
// relation path points at.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/schema"
	"entity-loader/internal/store"
)

// Request describes one lookup-or-create.
type Request struct {
	Relation schema.RelationDescriptor
	Target   *schema.EntityType

	LookupField string
	LookupValue any

	CreateIfMissing bool
	// Attributes are every value mapped onto the target for the current
	// row, the lookup attribute included. They are written when the target
	// is created, and on OwnedMany children found in place.
	Attributes map[string]any

	// Owner is the persisted record the relation hangs off. It is required
	// for InverseSingle and OwnedMany relations, whose foreign key lives on
	// the target.
	Owner *store.Record
}

// Outcome tells what Resolve did.
type Outcome int

const (
	// NotResolved means nothing was found and nothing was created.
	NotResolved Outcome = iota
	Found
	Created
	// Updated means an existing target was rewritten: its foreign key moved
	// to the owner or, for OwnedMany, its mapped attributes refreshed.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case NotResolved:
		return "not_resolved"
	case Found:
		return "found"
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return common.UnknownStr
	}
}

// Result is the resolved target.
type Result struct {
	Record  *store.Record
	Outcome Outcome
}

// Resolver implements lookup-or-create against a Store. Lookups always go
// to the store, so a target created earlier in the run is found again
// rather than created twice.
type Resolver struct {
	store store.Store
	log   *logrus.Logger
}

// New returns a Resolver over s.
func New(s store.Store, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Resolver{store: s, log: log}
}

// Resolve looks the target up by req.LookupField. A blank lookup value
// resolves to nothing. When nothing matches and creation is allowed, the
// target is built from req.Attributes after checking its required
// attributes; missing ones are reported as a RelationResolutionError of
// kind MissingRequired.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if common.IsBlank(req.LookupValue) {
		return Result{}, nil
	}

	dependent := req.Relation.Kind.IsDependent()
	if dependent && (req.Owner == nil || req.Owner.IsNew()) {
		return Result{}, fmt.Errorf("relation %s: owner must be persisted before its %s", req.Relation.Name, req.Target.Name)
	}

	criteria := store.Criteria{req.LookupField: req.LookupValue}

	// A non-unique key only identifies a child within its owner's collection.
	if req.Relation.Kind == schema.OwnedMany && !r.isUnique(req.Target, req.LookupField) {
		criteria[req.Relation.ForeignKey] = req.Owner.ID
	}

	found, err := r.store.Find(ctx, req.Target.Name, criteria)

	switch {
	case err == nil:
		return r.adopt(ctx, req, found)
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, r.wrap(req, importerr.ResolutionFailed, err)
	case !req.CreateIfMissing:
		return Result{}, nil
	}

	return r.create(ctx, req)
}

func (r *Resolver) isUnique(et *schema.EntityType, field string) bool {
	if field == schema.PrimaryKey {
		return true
	}

	a, ok := et.Attribute(field)

	return ok && a.Unique
}

// adopt reassigns a found dependent target to the owner when needed.
func (r *Resolver) adopt(ctx context.Context, req Request, found *store.Record) (Result, error) {
	if !req.Relation.Kind.IsDependent() {
		return Result{Record: found, Outcome: Found}, nil
	}

	changed := false
	fk := req.Relation.ForeignKey

	if !common.ValuesEqual(found.Attrs[fk], req.Owner.ID) {
		found.Set(fk, req.Owner.ID)

		changed = true
	}

	if req.Relation.Kind == schema.OwnedMany {
		for name, v := range req.Attributes {
			if name == schema.PrimaryKey || !req.Target.HasAttribute(name) {
				continue
			}

			if !common.ValuesEqual(found.Attrs[name], v) {
				found.Set(name, v)

				changed = true
			}
		}
	}

	if !changed {
		return Result{Record: found, Outcome: Found}, nil
	}

	if err := r.store.Update(ctx, found); err != nil {
		return Result{}, r.wrap(req, kindOf(err), err)
	}

	r.log.WithFields(logrus.Fields{
		"relation": req.Relation.String(),
		"id":       found.ID,
	}).Debug("updated related record")

	return Result{Record: found, Outcome: Updated}, nil
}

func (r *Resolver) create(ctx context.Context, req Request) (Result, error) {
	rec := store.NewRecord(req.Target.Name)

	for name, v := range req.Attributes {
		if name == schema.PrimaryKey || !req.Target.HasAttribute(name) || v == nil {
			continue
		}

		rec.Set(name, v)
	}

	if req.Relation.Kind.IsDependent() {
		rec.Set(req.Relation.ForeignKey, req.Owner.ID)
	}

	var missing []string

	for _, name := range req.Target.RequiredAttributes() {
		if common.IsBlank(rec.Attrs[name]) {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		e := r.wrap(req, importerr.MissingRequired, nil)
		e.Fields = missing

		return Result{}, e
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		return Result{}, r.wrap(req, kindOf(err), err)
	}

	r.log.WithFields(logrus.Fields{
		"relation": req.Relation.String(),
		"lookup":   req.LookupField,
		"id":       rec.ID,
	}).Debug("created related record")

	return Result{Record: rec, Outcome: Created}, nil
}

func (r *Resolver) wrap(req Request, kind importerr.ResolutionKind, err error) *importerr.RelationResolutionError {
	return &importerr.RelationResolutionError{
		Kind:        kind,
		Relation:    req.Relation.Name,
		Entity:      req.Target.Name,
		LookupField: req.LookupField,
		LookupValue: req.LookupValue,
		Err:         err,
	}
}

func kindOf(err error) importerr.ResolutionKind {
	switch {
	case errors.Is(err, store.ErrUniqueViolation):
		return importerr.UniqueViolation
	case errors.Is(err, store.ErrValueTooLong):
		return importerr.DataTooLong
	case errors.Is(err, store.ErrNotNull):
		return importerr.MissingRequired
	default:
		return importerr.ResolutionFailed
	}
}
