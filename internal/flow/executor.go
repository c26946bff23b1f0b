package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"entity-loader/internal/importerr"
	"entity-loader/internal/loader"
	"entity-loader/internal/mapping"
	"entity-loader/internal/metrics"
	"entity-loader/internal/pivot"
	"entity-loader/internal/schema"
	"entity-loader/internal/source"
	"entity-loader/internal/store"
	"entity-loader/internal/transform"
)

// Result is the outcome of Process.
type Result struct {
	RunID   uuid.UUID      `json:"run_id"`
	Mapping string         `json:"mapping"`
	Status  Status         `json:"status"`
	Stats   *RunStatistics `json:"stats"`
	// Order is the entity type execution order.
	Order    []string `json:"order,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Err is the fatal error that failed the run, if any.
	Err error `json:"-"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ExitCode maps the status to a process exit code.
func (r *Result) ExitCode() int {
	if r.Status == Failed {
		return 1
	}

	return 0
}

// Executor runs mappings against a store. Rows are processed one at a time,
// in source order.
type Executor struct {
	registry   *schema.Registry
	transforms *transform.Registry
	store      store.Store
	log        *logrus.Logger
	opts       Options
}

// New returns an Executor. Options are used as given; see Options.WithFlow
// to take the mapping document's flow_config into account.
func New(reg *schema.Registry, transforms *transform.Registry, s store.Store, log *logrus.Logger, opts Options) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if transforms == nil {
		transforms = transform.NewRegistry()
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}

	if opts.ErrorPolicy == "" {
		opts.ErrorPolicy = mapping.PolicyContinue
	}

	if opts.Decider == nil {
		opts.Decider = PolicyDecider(opts.ErrorPolicy)
	}

	return &Executor{registry: reg, transforms: transforms, store: s, log: log, opts: opts}
}

// run is the state of one Process call.
type run struct {
	*Executor

	result *Result
	stats  *RunStatistics
	plan   *mapping.Plan
	loader *loader.Loader
	pivots *pivot.Engine
	log    *logrus.Entry

	haltOnError bool
	silenced    map[importerr.Kind]bool
}

// Process compiles def and loads every row of src. A mapping that fails to
// compile fails the run before any row is read.
func (e *Executor) Process(ctx context.Context, def *mapping.MappingDefinition, src source.Source) *Result {
	res := &Result{
		RunID:     uuid.New(),
		Status:    Pending,
		Stats:     newStatistics(),
		StartedAt: time.Now(),
	}

	if def != nil {
		res.Mapping = def.Name
	}

	r := &run{
		Executor: e,
		result:   res,
		stats:    res.Stats,
		log:      e.log.WithField("run_id", res.RunID.String()),
		silenced: make(map[importerr.Kind]bool),
	}

	defer r.finish()

	plan, err := mapping.Compile(def, e.registry, e.transforms)
	if err != nil {
		r.fail(fmt.Errorf("compile mapping: %w", err))
		return res
	}

	r.plan = plan
	r.loader = loader.New(e.store, e.log, loader.Options{TruncateLongFields: e.opts.TruncateLongFields})
	r.pivots = pivot.New(e.store, r.loader, e.log)

	res.Order = plan.Order
	for _, w := range plan.Warnings {
		res.Warnings = append(res.Warnings, w.String())
	}

	for _, ce := range plan.Entities {
		r.stats.Entity(ce.Label, ce.Entity.Name)
	}

	res.Status = Running
	r.log.WithFields(logrus.Fields{
		"mapping": res.Mapping,
		"order":   plan.Order,
	}).Info("import started")

	for row, err := range src.Rows(ctx) {
		if err != nil {
			r.fail(fmt.Errorf("read source: %w", err))
			return res
		}

		if err := ctx.Err(); err != nil {
			r.fail(err)
			return res
		}

		halt := r.processRow(ctx, row)

		if r.stats.Rows%e.opts.ChunkSize == 0 {
			r.progress()
		}

		if halt {
			r.fail(fmt.Errorf("halted at line %d by error policy", row.Line))
			return res
		}
	}

	if r.stats.HasErrors() {
		res.Status = PartiallyCompleted
	} else {
		res.Status = Completed
	}

	return res
}

// processRow runs every entity mapping on row. It returns true when the run
// must halt.
func (r *run) processRow(ctx context.Context, row source.Row) bool {
	r.stats.Rows++

	if row.IsEmpty() && r.opts.SkipEmptyRows {
		r.stats.EmptyRows = append(r.stats.EmptyRows, row.Line)
		metrics.RowsTotal.WithLabelValues("empty").Inc()

		return false
	}

	written, standard := false, false

	for _, ce := range r.plan.Entities {
		es := r.stats.Entity(ce.Label, ce.Entity.Name)

		if ce.IsPivot() {
			res, err := r.pivots.Sync(ctx, row, ce)
			if err != nil {
				es.Errors++
				return r.rowError(row, ce, err)
			}

			es.Attached += res.Counts.Attached
			es.Detached += res.Counts.Detached
			es.PivotUpdated += res.Counts.Updated
			r.truncated(res.Values)
			r.countAssociations(ce, res.Counts)

			continue
		}

		standard = true

		res, err := r.loader.Load(ctx, row, ce)
		if res != nil {
			r.truncated(res.Values)
		}

		if err != nil {
			es.Errors++
			return r.rowError(row, ce, err)
		}

		switch res.Outcome {
		case loader.Created:
			es.Created++
			written = true
		case loader.Updated:
			es.Updated++
			written = true
		case loader.Skipped:
			es.Skipped++
		}

		metrics.RecordsTotal.WithLabelValues(ce.Entity.Name, res.Outcome.String()).Inc()
	}

	if written || !standard {
		r.stats.Imported++
		metrics.RowsTotal.WithLabelValues("imported").Inc()
	} else {
		r.stats.Skipped++
		metrics.RowsTotal.WithLabelValues("skipped").Inc()
	}

	return false
}

// rowError records a row-scoped failure and applies the error decision.
// Remaining mappings of the row are not attempted.
func (r *run) rowError(row source.Row, ce *mapping.CompiledEntity, err error) bool {
	cls := importerr.Classify(err)

	var verr *importerr.ValidationError
	if errors.As(err, &verr) {
		r.stats.Skipped++
		metrics.RowsTotal.WithLabelValues("skipped").Inc()
	} else {
		r.stats.ErrorCount++
		metrics.RowsTotal.WithLabelValues("error").Inc()
	}

	metrics.ErrorsTotal.WithLabelValues(string(cls.Kind)).Inc()

	if r.silenced[cls.Kind] {
		r.stats.Suppressed++
		return r.haltOnError
	}

	re := RowError{
		Line:           row.Line,
		Mapping:        ce.Label,
		Entity:         ce.Entity.Name,
		Err:            err,
		Classification: cls,
	}

	if row.Fields != nil {
		re.Values = row.Fields.Map()
	}

	r.stats.Errors = append(r.stats.Errors, re)

	r.log.WithFields(logrus.Fields{
		"line":    row.Line,
		"mapping": ce.Label,
		"kind":    cls.Kind,
	}).WithError(err).Warn("row failed")

	if r.haltOnError {
		return true
	}

	switch d := r.opts.Decider.Decide(re); d {
	case Stop:
		return true
	case StopOnError:
		r.haltOnError = true
	case ContinueSilent:
		r.silenced[cls.Kind] = true
	case Continue:
	default:
		r.log.WithField("decision", int(d)).Warn("unknown error decision, continuing")
	}

	return false
}

func (r *run) truncated(v *loader.Values) {
	if v == nil || len(v.Truncations) == 0 {
		return
	}

	r.stats.Truncations = append(r.stats.Truncations, v.Truncations...)

	for _, t := range v.Truncations {
		metrics.TruncationsTotal.WithLabelValues(t.Entity).Inc()
	}
}

func (r *run) countAssociations(ce *mapping.CompiledEntity, c pivot.Counts) {
	rel := ce.Pivot.Relation.String()

	metrics.AssociationsTotal.WithLabelValues(rel, "attached").Add(float64(c.Attached))
	metrics.AssociationsTotal.WithLabelValues(rel, "detached").Add(float64(c.Detached))
	metrics.AssociationsTotal.WithLabelValues(rel, "updated").Add(float64(c.Updated))
}

func (r *run) progress() {
	p := Progress{
		RunID:    r.result.RunID,
		Rows:     r.stats.Rows,
		Imported: r.stats.Imported,
		Skipped:  r.stats.Skipped,
		Errors:   r.stats.ErrorCount,
	}

	r.log.WithFields(logrus.Fields{
		"rows":     p.Rows,
		"imported": p.Imported,
		"skipped":  p.Skipped,
		"errors":   p.Errors,
	}).Info("import progress")

	if r.opts.Progress != nil {
		r.opts.Progress(p)
	}
}

func (r *run) fail(err error) {
	r.result.Status = Failed
	r.result.Err = err

	r.log.WithError(err).Error("import failed")
}

func (r *run) finish() {
	res := r.result
	res.Duration = time.Since(res.StartedAt)
	res.Warnings = append(res.Warnings, r.stats.Warnings()...)

	metrics.RunDuration.WithLabelValues(res.Status.String()).Observe(res.Duration.Seconds())

	r.log.WithFields(logrus.Fields{
		"status":      res.Status.String(),
		"rows":        r.stats.Rows,
		"imported":    r.stats.Imported,
		"skipped":     r.stats.Skipped,
		"errors":      r.stats.ErrorCount,
		"empty_rows":  len(r.stats.EmptyRows),
		"truncations": len(r.stats.Truncations),
		"duration":    res.Duration.String(),
	}).Info("import finished")
}
