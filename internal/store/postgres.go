package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"entity-loader/internal/common"
	"entity-loader/internal/schema"
)

const defaultQueryTimeout = 30 * time.Second

// Querier is the subset of a pgx pool the store needs. *dbpool.Pool and
// pgx.Tx both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists records into existing tables: one table per entity
// type named by EntityType.Table, an "id" primary key, one column per
// attribute, and one table per many-to-many relation.
type PostgresStore struct {
	db  Querier
	reg *schema.Registry
	log *logrus.Logger
}

// NewPostgresStore returns a store writing through db.
func NewPostgresStore(db Querier, reg *schema.Registry, log *logrus.Logger) *PostgresStore {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &PostgresStore{db: db, reg: reg, log: log}
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

func (s *PostgresStore) describe(entity string) (*schema.EntityType, error) {
	et, ok := s.reg.Describe(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	return et, nil
}

// Find implements Store.
func (s *PostgresStore) Find(ctx context.Context, entity string, c Criteria) (*Record, error) {
	recs, err := s.query(ctx, entity, c, 1)
	if err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %v: %w", entity, map[string]any(c), ErrNotFound)
	}

	return recs[0], nil
}

// FindMany implements Store.
func (s *PostgresStore) FindMany(ctx context.Context, entity string, c Criteria) ([]*Record, error) {
	return s.query(ctx, entity, c, 0)
}

func (s *PostgresStore) query(ctx context.Context, entity string, c Criteria, limit int) ([]*Record, error) {
	et, err := s.describe(entity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sql, args, err := selectSQL(et, c, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", entity, translate(err))
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", entity, translate(err))
	}

	out := make([]*Record, 0, len(maps))
	for _, m := range maps {
		rec := NewRecord(entity)
		rec.ID = common.Stringify(m[schema.PrimaryKey])
		delete(m, schema.PrimaryKey)
		rec.Attrs = m
		out = append(out, rec)
	}

	return out, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	et, err := s.describe(rec.Entity)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sql, args, err := insertSQL(et, rec)
	if err != nil {
		return err
	}

	var id string
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return fmt.Errorf("inserting %s: %w", rec.Entity, translate(err))
	}

	rec.ID = id

	s.log.WithFields(logrus.Fields{"entity": rec.Entity, "id": id}).Debug("inserted record")

	return nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	et, err := s.describe(rec.Entity)
	if err != nil {
		return err
	}

	sql, args, err := updateSQL(et, rec)
	if err != nil || sql == "" {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", rec.Entity, rec.ID, translate(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", rec.Entity, rec.ID, ErrNotFound)
	}

	s.log.WithFields(logrus.Fields{"entity": rec.Entity, "id": rec.ID}).Debug("updated record")

	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, entity, id string) error {
	et, err := s.describe(entity)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(et.Table), ident(schema.PrimaryKey))

	tag, err := s.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", entity, id, translate(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}

	return nil
}

// Associations implements Store.
func (s *PostgresStore) Associations(ctx context.Context, rel schema.RelationDescriptor, ownerID string) ([]Link, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cols := []string{ident(rel.RelatedKey) + "::text AS " + ident(rel.RelatedKey)}
	for _, a := range rel.PivotAttributes {
		cols = append(cols, ident(a.Name))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(cols, ", "), ident(rel.AssociationTable), ident(rel.OwnerKey))

	rows, err := s.db.Query(ctx, sql, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rel.AssociationTable, translate(err))
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rel.AssociationTable, translate(err))
	}

	out := make([]Link, 0, len(maps))
	for _, m := range maps {
		link := Link{RelatedID: common.Stringify(m[rel.RelatedKey]), Attrs: make(map[string]any)}
		for _, a := range rel.PivotAttributes {
			link.Attrs[a.Name] = m[a.Name]
		}

		out = append(out, link)
	}

	return out, nil
}

// Attach implements Store.
func (s *PostgresStore) Attach(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var exists bool

	check := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)",
		ident(rel.AssociationTable), ident(rel.OwnerKey), ident(rel.RelatedKey))
	if err := s.db.QueryRow(ctx, check, ownerID, relatedID).Scan(&exists); err != nil {
		return fmt.Errorf("checking %s: %w", rel.AssociationTable, translate(err))
	}

	if exists {
		return nil
	}

	cols := []string{ident(rel.OwnerKey), ident(rel.RelatedKey)}
	args := []any{ownerID, relatedID}

	for _, a := range rel.PivotAttributes {
		if v, ok := attrs[a.Name]; ok {
			p, err := param(a, v)
			if err != nil {
				return fmt.Errorf("attaching %s: %w", rel.AssociationTable, err)
			}

			cols = append(cols, ident(a.Name))
			args = append(args, p)
		}
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(rel.AssociationTable), strings.Join(cols, ", "), placeholders(1, len(args)))

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("attaching %s: %w", rel.AssociationTable, translate(err))
	}

	return nil
}

// Detach implements Store.
func (s *PostgresStore) Detach(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2",
		ident(rel.AssociationTable), ident(rel.OwnerKey), ident(rel.RelatedKey))

	if _, err := s.db.Exec(ctx, sql, ownerID, relatedID); err != nil {
		return fmt.Errorf("detaching %s: %w", rel.AssociationTable, translate(err))
	}

	return nil
}

// UpdatePivot implements Store.
func (s *PostgresStore) UpdatePivot(ctx context.Context, rel schema.RelationDescriptor, ownerID, relatedID string, attrs map[string]any) error {
	var (
		sets []string
		args []any
	)

	for _, a := range rel.PivotAttributes {
		if v, ok := attrs[a.Name]; ok {
			p, err := param(a, v)
			if err != nil {
				return fmt.Errorf("updating %s: %w", rel.AssociationTable, err)
			}

			args = append(args, p)
			sets = append(sets, fmt.Sprintf("%s = $%d", ident(a.Name), len(args)))
		}
	}

	if len(sets) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	args = append(args, ownerID, relatedID)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d AND %s = $%d",
		ident(rel.AssociationTable), strings.Join(sets, ", "),
		ident(rel.OwnerKey), len(args)-1, ident(rel.RelatedKey), len(args))

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", rel.AssociationTable, translate(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s/%s: %w", rel.AssociationTable, ownerID, relatedID, ErrNotFound)
	}

	return nil
}

// translate maps driver errors onto the store sentinels, keeping the
// original error in the chain.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case "22001":
		return fmt.Errorf("%w: %w", ErrValueTooLong, err)
	case "23502":
		return fmt.Errorf("%w: %w", ErrNotNull, err)
	}

	return err
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}

	return strings.Join(ps, ", ")
}

// selectSQL builds the query for Find and FindMany. Criteria values are
// bound with the type of their attribute.
func selectSQL(et *schema.EntityType, c Criteria, limit int) (string, []any, error) {
	cols := []string{ident(schema.PrimaryKey) + "::text AS " + ident(schema.PrimaryKey)}
	for _, name := range et.AttributeNames() {
		cols = append(cols, ident(name))
	}

	var (
		where []string
		args  []any
	)

	for _, k := range c.Keys() {
		v := c[k]
		if v == nil {
			where = append(where, ident(k)+" IS NULL")
			continue
		}

		p, err := attrParam(et, k, v)
		if err != nil {
			return "", nil, err
		}

		args = append(args, p)
		where = append(where, fmt.Sprintf("%s = $%d", ident(k), len(args)))
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), ident(et.Table))

	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	sb.WriteString(" ORDER BY " + ident(schema.PrimaryKey))

	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}

	return sb.String(), args, nil
}

// insertSQL writes the declared attributes present on rec. The id is left
// to the table default unless the record carries one.
func insertSQL(et *schema.EntityType, rec *Record) (string, []any, error) {
	var (
		cols []string
		args []any
	)

	if rec.ID != "" {
		cols = append(cols, ident(schema.PrimaryKey))
		args = append(args, rec.ID)
	}

	for _, a := range et.Attributes() {
		if v, ok := rec.Attrs[a.Name]; ok {
			p, err := param(a, v)
			if err != nil {
				return "", nil, err
			}

			cols = append(cols, ident(a.Name))
			args = append(args, p)
		}
	}

	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s::text",
			ident(et.Table), ident(schema.PrimaryKey)), nil, nil
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s::text",
		ident(et.Table), strings.Join(cols, ", "), placeholders(1, len(args)), ident(schema.PrimaryKey)), args, nil
}

// updateSQL sets every declared attribute present on rec. It returns an
// empty statement when there is nothing to write.
func updateSQL(et *schema.EntityType, rec *Record) (string, []any, error) {
	var (
		sets []string
		args []any
	)

	for _, a := range et.Attributes() {
		if v, ok := rec.Attrs[a.Name]; ok {
			p, err := param(a, v)
			if err != nil {
				return "", nil, err
			}

			args = append(args, p)
			sets = append(sets, fmt.Sprintf("%s = $%d", ident(a.Name), len(args)))
		}
	}

	if len(sets) == 0 {
		return "", nil, nil
	}

	args = append(args, rec.ID)

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		ident(et.Table), strings.Join(sets, ", "), ident(schema.PrimaryKey), len(args)), args, nil
}
