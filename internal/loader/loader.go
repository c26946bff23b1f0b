// Package loader turns one source row into one persisted entity, following
// a compiled entity mapping: transforms, unique-key duplicate handling,
// attribute assignment, relation resolution and persistence.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/mapping"
	"entity-loader/internal/resolve"
	"entity-loader/internal/schema"
	"entity-loader/internal/source"
	"entity-loader/internal/store"
)

// Outcome tells what Load did with the row.
type Outcome int

const (
	Created Outcome = iota
	Updated
	// Skipped means the unique key matched and the duplicate strategy is skip.
	Skipped
	// Failed comes with an error; only Values is set.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return common.UnknownStr
	}
}

// Result is the entity a row produced.
type Result struct {
	Record  *store.Record
	Outcome Outcome
	Values  *Values
}

// Options tune a Loader.
type Options struct {
	// TruncateLongFields cuts string values to the attribute max length
	// instead of letting the store reject them.
	TruncateLongFields bool
}

// Loader persists rows through a Store. It keeps no state between rows.
type Loader struct {
	store    store.Store
	resolver *resolve.Resolver
	log      *logrus.Logger
	opts     Options
}

// New returns a Loader writing to s.
func New(s store.Store, log *logrus.Logger, opts Options) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Loader{
		store:    s,
		resolver: resolve.New(s, log),
		log:      log,
		opts:     opts,
	}
}

// Evaluate applies the column transforms of ce to row. Transform failures
// are returned together as a ValidationError.
func (l *Loader) Evaluate(row source.Row, ce *mapping.CompiledEntity) (*Values, error) {
	v := &Values{
		Row:      row,
		Entity:   ce,
		byColumn: make(map[*mapping.CompiledColumn]any, len(ce.Columns)),
		truncate: l.opts.TruncateLongFields,
	}

	verr := importerr.NewValidationError(ce.Label)

	for _, col := range ce.Columns {
		val, truncations, err := evaluate(row, col)
		if err != nil {
			verr.Add(col.Target(), err.Error())
			continue
		}

		for i := range truncations {
			truncations[i].Entity = col.Entity.Name
		}

		v.Truncations = append(v.Truncations, truncations...)
		v.byColumn[col] = val
	}

	if !verr.Empty() {
		return nil, verr
	}

	return v, nil
}

// Load maps row onto the entity of ce and persists it. Relations the
// entity depends on are resolved first; dependent and many-to-many
// relations are linked once the entity has an id. Once the row is
// evaluated, a failing Load still returns a Failed result carrying the
// evaluated Values.
func (l *Loader) Load(ctx context.Context, row source.Row, ce *mapping.CompiledEntity) (*Result, error) {
	if ce.IsPivot() {
		return nil, fmt.Errorf("%s is a pivot_sync mapping", ce.Label)
	}

	v, err := l.Evaluate(row, ce)
	if err != nil {
		return nil, err
	}

	rec, err := l.lookupExisting(ctx, v)
	if err != nil {
		return failed(v, err)
	}

	if rec != nil && ce.Mapping.Options.DuplicateStrategy == mapping.DuplicateSkip {
		return &Result{Record: rec, Outcome: Skipped, Values: v}, nil
	}

	if err := v.Validate(); err != nil {
		return failed(v, err)
	}

	outcome := Updated
	if rec == nil {
		rec = store.NewRecord(ce.Entity.Name)
		outcome = Created
	}

	l.assign(v, rec)

	for _, g := range ce.Groups {
		if g.Relation.Kind != schema.OwnedSingle {
			continue
		}

		parent, err := l.ResolveGroup(ctx, v, g, nil, -1)
		if err != nil {
			return failed(v, err)
		}

		if parent != nil {
			rec.Set(g.Relation.ForeignKey, parent.ID)
		}
	}

	if rec.IsNew() {
		if err := checkRequired(ce, rec); err != nil {
			return failed(v, err)
		}

		err = l.store.Insert(ctx, rec)
	} else {
		err = l.store.Update(ctx, rec)
	}

	if err != nil {
		return failed(v, fmt.Errorf("save %s: %w", ce.Entity.Name, err))
	}

	for _, g := range ce.Groups {
		if g.Relation.Kind == schema.OwnedSingle {
			continue
		}

		if err := l.linkGroup(ctx, v, g, rec, -1); err != nil {
			return failed(v, err)
		}
	}

	l.log.WithFields(logrus.Fields{
		"line":    row.Line,
		"mapping": ce.Label,
		"id":      rec.ID,
		"outcome": outcome.String(),
	}).Debug("row loaded")

	return &Result{Record: rec, Outcome: outcome, Values: v}, nil
}

// failed keeps the evaluated values of a row that could not be loaded, so
// the caller still sees the truncations made before the failure.
func failed(v *Values, err error) (*Result, error) {
	return &Result{Outcome: Failed, Values: v}, err
}

// lookupExisting finds the record the unique key of the mapping points at.
// A blank key part means the row cannot match anything.
func (l *Loader) lookupExisting(ctx context.Context, v *Values) (*store.Record, error) {
	ce := v.Entity
	if len(ce.UniqueKey) == 0 {
		return nil, nil
	}

	key := make(store.Criteria, len(ce.UniqueKey))

	for _, name := range ce.UniqueKey {
		for _, col := range ce.Attributes {
			if col.Attribute.Name == name {
				key[name] = v.Get(col)
			}
		}

		if common.IsBlank(key[name]) {
			return nil, nil
		}
	}

	found, err := l.store.Find(ctx, ce.Entity.Name, key)

	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("look up %s by %s: %w", ce.Entity.Name, ce.Mapping.Options.UniqueKey, err)
	}

	if ce.Mapping.Options.DuplicateStrategy == mapping.DuplicateError {
		return nil, &importerr.DuplicateKeyError{Entity: ce.Entity.Name, Key: key, ExistingID: found.ID}
	}

	return found, nil
}

// assign copies the plain attribute values onto rec. Blank values never
// overwrite stored ones.
func (l *Loader) assign(v *Values, rec *store.Record) {
	for _, col := range v.Entity.Attributes {
		if !col.Declared {
			continue
		}

		val := v.Get(col)
		if common.IsBlank(val) {
			continue
		}

		if col.Attribute.Name == schema.PrimaryKey {
			if rec.IsNew() {
				rec.ID = common.Stringify(val)
			}

			continue
		}

		rec.Set(col.Attribute.Name, v.fit(v.Entity.Entity, col.Attribute, val))
	}
}

func checkRequired(ce *mapping.CompiledEntity, rec *store.Record) error {
	verr := importerr.NewValidationError(ce.Label)

	for _, name := range ce.Entity.RequiredAttributes() {
		if common.IsBlank(rec.Attrs[name]) {
			verr.Add(name, "is required")
		}
	}

	if verr.Empty() {
		return nil
	}

	return verr
}
