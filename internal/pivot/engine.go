// Package pivot reconciles many-to-many associations from pivot_sync
// mappings. It never creates or deletes the entities on either side.
package pivot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/loader"
	"entity-loader/internal/mapping"
	"entity-loader/internal/source"
	"entity-loader/internal/store"
)

// Counts are the association changes one row caused.
type Counts struct {
	Attached int
	Detached int
	Updated  int
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Attached += other.Attached
	c.Detached += other.Detached
	c.Updated += other.Updated
}

// Result is the outcome of one Sync.
type Result struct {
	Owner   *store.Record
	Related []*store.Record
	Counts  Counts
	Values  *loader.Values
}

type ownerKey struct {
	mapping int
	owner   string
}

// Engine applies pivot_sync mappings. With the sync strategy, the desired
// association set of an owner is everything the rows of the run asserted
// for it so far, so an Engine must not outlive a run.
type Engine struct {
	store  store.Store
	loader *loader.Loader
	log    *logrus.Logger

	desired map[ownerKey]map[string]bool
}

// New returns an Engine resolving the related side through l.
func New(s store.Store, l *loader.Loader, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Engine{
		store:   s,
		loader:  l,
		log:     log,
		desired: make(map[ownerKey]map[string]bool),
	}
}

// Sync finds the owner of the row, resolves the related entities and
// reconciles the owner's associations with them.
func (e *Engine) Sync(ctx context.Context, row source.Row, ce *mapping.CompiledEntity) (*Result, error) {
	if !ce.IsPivot() {
		return nil, fmt.Errorf("%s is not a pivot_sync mapping", ce.Label)
	}

	v, err := e.loader.Evaluate(row, ce)
	if err != nil {
		return nil, err
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	owner, err := e.findOwner(ctx, v)
	if err != nil {
		return nil, err
	}

	spec := ce.Pivot
	g := spec.Related
	res := &Result{Owner: owner, Values: v}

	links, err := e.store.Associations(ctx, spec.Relation, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list %s of %s %s: %w", spec.Relation.Name, owner.Entity, owner.ID, err)
	}

	existing := make(map[string]store.Link, len(links))
	for _, link := range links {
		existing[link.RelatedID] = link
	}

	key := ownerKey{mapping: ce.Index, owner: owner.ID}
	if e.desired[key] == nil {
		e.desired[key] = make(map[string]bool)
	}

	for i := range v.Elements(g) {
		related, err := e.loader.ResolveGroup(ctx, v, g, nil, i)
		if err != nil {
			return nil, err
		}

		if related == nil {
			lookup := v.Attributes(g, i)[g.LookupField]
			if common.IsBlank(lookup) || g.Optional {
				continue
			}

			return nil, fmt.Errorf("%s %s=%v: %w", g.Target.Name, g.LookupField, lookup, store.ErrNotFound)
		}

		res.Related = append(res.Related, related)
		e.desired[key][related.ID] = true

		change, err := loader.Link(ctx, e.store, spec.Relation, owner.ID, related.ID, v.PivotAttributes(g, i), existing)
		if err != nil {
			return nil, err
		}

		switch change {
		case loader.LinkAttached:
			res.Counts.Attached++
		case loader.LinkUpdated:
			res.Counts.Updated++
		}
	}

	// A row without related values asserts nothing and leaves the links
	// alone, even under sync.
	if spec.Strategy == mapping.SyncReplace && len(res.Related) > 0 {
		detached, err := e.detachStale(ctx, ce, owner, existing, e.desired[key])
		if err != nil {
			return nil, err
		}

		res.Counts.Detached = detached
	}

	e.log.WithFields(logrus.Fields{
		"line":     row.Line,
		"mapping":  ce.Label,
		"owner":    owner.ID,
		"attached": res.Counts.Attached,
		"detached": res.Counts.Detached,
		"updated":  res.Counts.Updated,
	}).Debug("associations synced")

	return res, nil
}

// findOwner looks the owner up by the attribute columns of the mapping.
// Owners are never created.
func (e *Engine) findOwner(ctx context.Context, v *loader.Values) (*store.Record, error) {
	ce := v.Entity
	criteria := make(store.Criteria, len(ce.Pivot.OwnerColumns))
	verr := importerr.NewValidationError(ce.Label)

	for _, col := range ce.Pivot.OwnerColumns {
		val := v.Get(col)
		if common.IsBlank(val) {
			verr.Add(col.Target(), "is required to find the owner")
			continue
		}

		criteria[ce.Pivot.OwnerLookup[col]] = val
	}

	if !verr.Empty() {
		return nil, verr
	}

	owner, err := e.store.Find(ctx, ce.Entity.Name, criteria)
	if err != nil {
		return nil, fmt.Errorf("%s owner %s: %w", ce.Entity.Name, describe(criteria), err)
	}

	return owner, nil
}

// detachStale removes the links of owner that no row of the run asserted.
func (e *Engine) detachStale(
	ctx context.Context, ce *mapping.CompiledEntity, owner *store.Record,
	existing map[string]store.Link, desired map[string]bool,
) (int, error) {
	stale := make([]string, 0, len(existing))

	for id := range existing {
		if !desired[id] {
			stale = append(stale, id)
		}
	}

	sort.Strings(stale)

	for _, id := range stale {
		if err := e.store.Detach(ctx, ce.Pivot.Relation, owner.ID, id); err != nil {
			return 0, fmt.Errorf("detach %s %s: %w", ce.Pivot.Relation.Target, id, err)
		}

		delete(existing, id)
	}

	return len(stale), nil
}

func describe(c store.Criteria) string {
	parts := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c[k]))
	}

	return strings.Join(parts, ",")
}
