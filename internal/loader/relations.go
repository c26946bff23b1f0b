package loader

import (
	"context"
	"fmt"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/mapping"
	"entity-loader/internal/resolve"
	"entity-loader/internal/schema"
	"entity-loader/internal/store"
)

// ResolveGroup finds or creates the related entity group g describes. idx
// selects the element when g sits inside a collection; pass -1 otherwise.
// owner is the record g hangs off and is only needed when the foreign key
// lives on the related side. A nil record with a nil error means the row
// carries nothing to resolve.
func (l *Loader) ResolveGroup(
	ctx context.Context, v *Values, g *mapping.RelationGroup, owner *store.Record, idx int,
) (*store.Record, error) {
	attrs := v.Attributes(g, idx)
	lookup := attrs[g.LookupField]

	if common.IsBlank(lookup) {
		if len(attrs) > 0 && g.CreateIfMissing && !g.Optional {
			return nil, &importerr.RelationResolutionError{
				Kind:        importerr.MissingRequired,
				Relation:    g.Key,
				Entity:      g.Target.Name,
				LookupField: g.LookupField,
				Fields:      []string{g.LookupField},
			}
		}

		return nil, nil
	}

	for _, child := range g.Children {
		if child.Relation.Kind != schema.OwnedSingle {
			continue
		}

		parent, err := l.ResolveGroup(ctx, v, child, nil, idx)
		if err != nil {
			return nil, err
		}

		if parent != nil {
			attrs[child.Relation.ForeignKey] = parent.ID
		}
	}

	res, err := l.resolver.Resolve(ctx, resolve.Request{
		Relation:        g.Relation,
		Target:          g.Target,
		LookupField:     g.LookupField,
		LookupValue:     lookup,
		CreateIfMissing: g.CreateIfMissing,
		Attributes:      attrs,
		Owner:           owner,
	})
	if err != nil {
		return nil, err
	}

	if res.Record == nil {
		return nil, nil
	}

	for _, child := range g.Children {
		if child.Relation.Kind == schema.OwnedSingle {
			continue
		}

		if err := l.linkGroup(ctx, v, child, res.Record, idx); err != nil {
			return nil, err
		}
	}

	return res.Record, nil
}

// linkGroup attaches the entities of a dependent or many-to-many group to
// a persisted owner. Outside a collection element, a collection group is
// expanded into one element per zipped list position.
func (l *Loader) linkGroup(ctx context.Context, v *Values, g *mapping.RelationGroup, owner *store.Record, idx int) error {
	var elements []int

	switch {
	case g.IsCollection() && idx < 0:
		for i := range v.Elements(g) {
			elements = append(elements, i)
		}
	case v.Elements(g) > 0:
		elements = []int{idx}
	}

	if len(elements) == 0 {
		return nil
	}

	if g.Relation.Kind == schema.ManyToMany {
		return l.associate(ctx, v, g, owner, elements)
	}

	kept := make(map[string]bool, len(elements))

	for _, i := range elements {
		child, err := l.ResolveGroup(ctx, v, g, owner, i)
		if err != nil {
			return err
		}

		if child != nil {
			kept[child.ID] = true
		}
	}

	if g.Relation.Kind != schema.OwnedMany || !l.deletesStale(v) {
		return nil
	}

	children, err := l.store.FindMany(ctx, g.Target.Name, store.Criteria{g.Relation.ForeignKey: owner.ID})
	if err != nil {
		return fmt.Errorf("list %s of %s %s: %w", g.Relation.Name, owner.Entity, owner.ID, err)
	}

	for _, child := range children {
		if kept[child.ID] {
			continue
		}

		if err := l.store.Delete(ctx, child.Entity, child.ID); err != nil {
			return fmt.Errorf("remove stale %s %s: %w", child.Entity, child.ID, err)
		}
	}

	return nil
}

// associate links the related entities of a many-to-many group to owner and
// refreshes the association attributes of links that already exist.
func (l *Loader) associate(
	ctx context.Context, v *Values, g *mapping.RelationGroup, owner *store.Record, elements []int,
) error {
	links, err := l.store.Associations(ctx, g.Relation, owner.ID)
	if err != nil {
		return fmt.Errorf("list %s of %s %s: %w", g.Relation.Name, owner.Entity, owner.ID, err)
	}

	existing := make(map[string]store.Link, len(links))
	for _, link := range links {
		existing[link.RelatedID] = link
	}

	kept := make(map[string]bool, len(elements))

	for _, i := range elements {
		related, err := l.ResolveGroup(ctx, v, g, nil, i)
		if err != nil {
			return err
		}

		if related == nil {
			continue
		}

		kept[related.ID] = true

		if _, err := Link(ctx, l.store, g.Relation, owner.ID, related.ID, v.PivotAttributes(g, i), existing); err != nil {
			return err
		}
	}

	if !l.deletesStale(v) {
		return nil
	}

	for id := range existing {
		if kept[id] {
			continue
		}

		if err := l.store.Detach(ctx, g.Relation, owner.ID, id); err != nil {
			return fmt.Errorf("detach %s %s: %w", g.Relation.Target, id, err)
		}
	}

	return nil
}

func (l *Loader) deletesStale(v *Values) bool {
	return v.Entity.Mapping.Options.RelationSync == mapping.RelationSyncDelete
}

// LinkChange tells what Link did.
type LinkChange int

const (
	LinkUnchanged LinkChange = iota
	LinkAttached
	LinkUpdated
)

// Link makes sure ownerID is associated with relatedID through rel with the
// given association attributes. existing holds the current links of the
// owner and is updated in place.
func Link(
	ctx context.Context, s store.Store, rel schema.RelationDescriptor,
	ownerID, relatedID string, attrs map[string]any, existing map[string]store.Link,
) (LinkChange, error) {
	link, linked := existing[relatedID]
	if !linked {
		if err := s.Attach(ctx, rel, ownerID, relatedID, attrs); err != nil {
			return LinkUnchanged, fmt.Errorf("attach %s %s: %w", rel.Target, relatedID, err)
		}

		existing[relatedID] = store.Link{RelatedID: relatedID, Attrs: attrs}

		return LinkAttached, nil
	}

	changed := false

	for k, val := range attrs {
		if !common.ValuesEqual(link.Attrs[k], val) {
			changed = true
			break
		}
	}

	if !changed {
		return LinkUnchanged, nil
	}

	if err := s.UpdatePivot(ctx, rel, ownerID, relatedID, attrs); err != nil {
		return LinkUnchanged, fmt.Errorf("update %s link %s: %w", rel.Name, relatedID, err)
	}

	merged := make(map[string]any, len(link.Attrs)+len(attrs))
	for k, val := range link.Attrs {
		merged[k] = val
	}

	for k, val := range attrs {
		merged[k] = val
	}

	existing[relatedID] = store.Link{RelatedID: relatedID, Attrs: merged}

	return LinkUpdated, nil
}
