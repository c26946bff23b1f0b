package loader

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"entity-loader/examples/library"
	"entity-loader/internal/mapping"
	"entity-loader/internal/source"
	"entity-loader/internal/store"
	"entity-loader/internal/transform"
)

type harness struct {
	t      *testing.T
	store  *store.MemoryStore
	loader *Loader
	plan   *mapping.Plan
}

func newHarness(t *testing.T, doc string, opts Options) *harness {
	t.Helper()

	reg, err := library.Registry()
	require.NoError(t, err)

	def, err := mapping.Parse([]byte(doc))
	require.NoError(t, err)

	plan, err := mapping.Compile(def, reg, transform.NewRegistry())
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	s := store.NewMemoryStore(reg)

	return &harness{t: t, store: s, loader: New(s, log, opts), plan: plan}
}

// entity returns the compiled mapping with the given label.
func (h *harness) entity(label string) *mapping.CompiledEntity {
	h.t.Helper()

	for _, ce := range h.plan.Entities {
		if ce.Label == label {
			return ce
		}
	}

	h.t.Fatalf("no mapping %s in plan:\n%s", label, spew.Sdump(h.plan.Order))

	return nil
}

func (h *harness) load(label string, line int, kv ...any) (*Result, error) {
	h.t.Helper()

	row := source.Row{Fields: source.NewFields(kv...), Line: line}

	return h.loader.Load(context.Background(), row, h.entity(label))
}

func (h *harness) find(entity string, c store.Criteria) *store.Record {
	h.t.Helper()

	rec, err := h.store.Find(context.Background(), entity, c)
	require.NoError(h.t, err, "%s %v", entity, c)

	return rec
}

func (h *harness) links(entity, relation, ownerID string) map[string]map[string]any {
	h.t.Helper()

	reg, err := library.Registry()
	require.NoError(h.t, err)

	rel, ok := reg.Relation(entity, relation)
	require.True(h.t, ok)

	links, err := h.store.Associations(context.Background(), rel, ownerID)
	require.NoError(h.t, err)

	out := make(map[string]map[string]any, len(links))
	for _, l := range links {
		out[l.RelatedID] = l.Attrs
	}

	return out
}
