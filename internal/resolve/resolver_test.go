package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-loader/examples/library"
	"entity-loader/internal/importerr"
	"entity-loader/internal/schema"
	"entity-loader/internal/store"
)

type fixture struct {
	reg   *schema.Registry
	store *store.MemoryStore
	res   *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg, err := library.Registry()
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	s := store.NewMemoryStore(reg)

	return &fixture{reg: reg, store: s, res: New(s, log)}
}

func (f *fixture) request(t *testing.T, entity, relation string) Request {
	t.Helper()

	d, ok := f.reg.Relation(entity, relation)
	require.True(t, ok, "%s.%s", entity, relation)

	target, ok := f.reg.Describe(d.Target)
	require.True(t, ok)

	return Request{Relation: d, Target: target}
}

func (f *fixture) insert(t *testing.T, entity string, attrs map[string]any) *store.Record {
	t.Helper()

	rec := store.NewRecord(entity)
	for k, v := range attrs {
		rec.Set(k, v)
	}

	require.NoError(t, f.store.Insert(context.Background(), rec))

	return rec
}

func TestResolveCreatesOnceAndReuses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request(t, "Book", "author")
	req.LookupField = "email"
	req.LookupValue = "ann@example.com"
	req.CreateIfMissing = true
	req.Attributes = map[string]any{"email": "ann@example.com", "name": "Ann"}

	first, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.Record)
	assert.Equal(t, Created, first.Outcome)
	assert.Equal(t, "Ann", first.Record.Attrs["name"])

	second, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Found, second.Outcome)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, 1, f.store.Count("Author"))
}

func TestResolveNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name   string
		value  any
		create bool
	}{
		{"not found without create", "nobody@example.com", false},
		{"blank lookup", "  ", true},
		{"nil lookup", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(t, "Book", "author")
			req.LookupField = "email"
			req.LookupValue = tt.value
			req.CreateIfMissing = tt.create

			res, err := f.res.Resolve(ctx, req)
			require.NoError(t, err)
			assert.Nil(t, res.Record)
			assert.Equal(t, NotResolved, res.Outcome)
		})
	}

	assert.Zero(t, f.store.Count("Author"))
}

func TestResolveCreateFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.insert(t, "Author", map[string]any{"email": "ann@example.com", "name": "Ann Smith"})

	tests := []struct {
		name     string
		entity   string
		relation string
		field    string
		attrs    map[string]any
		kind     importerr.ResolutionKind
		fields   []string
	}{
		{
			name:   "missing required title",
			entity: "Chapter", relation: "book", field: "isbn",
			attrs:  map[string]any{"isbn": "978-9"},
			kind:   importerr.MissingRequired,
			fields: []string{"title"},
		},
		{
			name:   "unique email taken",
			entity: "Book", relation: "author", field: "name",
			attrs: map[string]any{"name": "Ann", "email": "ann@example.com"},
			kind:  importerr.UniqueViolation,
		},
		{
			name:   "name too long",
			entity: "Book", relation: "author", field: "email",
			attrs: map[string]any{"email": "long@example.com", "name": strings.Repeat("x", 41)},
			kind:  importerr.DataTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(t, tt.entity, tt.relation)
			req.LookupField = tt.field
			req.LookupValue = tt.attrs[tt.field]
			req.CreateIfMissing = true
			req.Attributes = tt.attrs

			res, err := f.res.Resolve(ctx, req)
			require.Error(t, err)
			assert.Nil(t, res.Record)

			var rre *importerr.RelationResolutionError
			require.True(t, errors.As(err, &rre), "got %T: %v", err, err)
			assert.Equal(t, tt.kind, rre.Kind)
			assert.Equal(t, tt.relation, rre.Relation)
			assert.Equal(t, tt.attrs[tt.field], rre.LookupValue)

			if tt.fields != nil {
				assert.Equal(t, tt.fields, rre.Fields)
			}
		})
	}

	assert.Equal(t, 1, f.store.Count("Author"))
	assert.Zero(t, f.store.Count("Book"))
}

func TestResolveInverseSingleReassigns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ann := f.insert(t, "Author", map[string]any{"email": "ann@example.com"})
	bob := f.insert(t, "Author", map[string]any{"email": "bob@example.com"})

	req := f.request(t, "Author", "profile")
	req.LookupField = "bio"
	req.LookupValue = "writes about Go"
	req.CreateIfMissing = true
	req.Attributes = map[string]any{"bio": "writes about Go"}
	req.Owner = ann

	created, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Created, created.Outcome)
	assert.Equal(t, ann.ID, created.Record.Attrs["author_id"])

	again, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Found, again.Outcome)

	req.Owner = bob
	moved, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Updated, moved.Outcome)
	assert.Equal(t, created.Record.ID, moved.Record.ID)

	stored, err := f.store.Find(ctx, "Profile", store.Criteria{"id": created.Record.ID})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, stored.Attrs["author_id"])
	assert.Equal(t, 1, f.store.Count("Profile"))
}

func TestResolveOwnedManyScopesByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b1 := f.insert(t, "Book", map[string]any{"isbn": "1", "title": "One"})
	b2 := f.insert(t, "Book", map[string]any{"isbn": "2", "title": "Two"})

	chapter := func(owner *store.Record, title string) Result {
		req := f.request(t, "Book", "chapters")
		req.LookupField = "number"
		req.LookupValue = 1
		req.CreateIfMissing = true
		req.Attributes = map[string]any{"number": 1, "title": title}
		req.Owner = owner

		res, err := f.res.Resolve(ctx, req)
		require.NoError(t, err)

		return res
	}

	first := chapter(b1, "Intro")
	assert.Equal(t, Created, first.Outcome)

	other := chapter(b2, "Intro")
	assert.Equal(t, Created, other.Outcome)
	assert.NotEqual(t, first.Record.ID, other.Record.ID)

	renamed := chapter(b1, "Opening")
	assert.Equal(t, Updated, renamed.Outcome)
	assert.Equal(t, first.Record.ID, renamed.Record.ID)
	assert.Equal(t, "Opening", renamed.Record.Attrs["title"])

	same := chapter(b1, "Opening")
	assert.Equal(t, Found, same.Outcome)
	assert.Equal(t, 2, f.store.Count("Chapter"))
}

func TestResolveDependentNeedsPersistedOwner(t *testing.T) {
	f := newFixture(t)

	req := f.request(t, "Author", "profile")
	req.LookupField = "bio"
	req.LookupValue = "x"
	req.Owner = store.NewRecord("Author")

	_, err := f.res.Resolve(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner must be persisted")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want importerr.ResolutionKind
	}{
		{fmt.Errorf("insert: %w", store.ErrUniqueViolation), importerr.UniqueViolation},
		{fmt.Errorf("insert: %w", store.ErrValueTooLong), importerr.DataTooLong},
		{store.ErrNotNull, importerr.MissingRequired},
		{errors.New("connection reset"), importerr.ResolutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, kindOf(tt.err))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
