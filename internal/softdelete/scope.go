package softdelete

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Scope builds every query against the soft-deletable record type T.
//
// Query is the default entry point and always excludes destroyed rows.
// Rows marked deleted are only reachable through Unscoped, DestroyedQuery and
// the *IncludingDestroyed / *OnlyDestroyed methods.
type Scope[T any] struct {
	db   *gorm.DB
	opts options
}

type options struct {
	hooks    Hooks
	now      func() time.Time
	logger   *slog.Logger
	transact func(db *gorm.DB, fn func(tx *gorm.DB) error) error
}

// Option configures a Scope.
type Option func(*options)

// WithHooks sets the strategy run around each destroy. Defaults to CallbackHooks.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = h
		}
	}
}

// WithClock sets the source of deletion timestamps. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger for lifecycle events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTransaction sets how multi-statement operations open a transaction.
// The function must join a transaction already open on db instead of
// starting a new one. Defaults to (*gorm.DB).Transaction.
func WithTransaction(fn func(db *gorm.DB, fn func(tx *gorm.DB) error) error) Option {
	return func(o *options) {
		if fn != nil {
			o.transact = fn
		}
	}
}

// NewScope returns the query factory for T.
// Panics if db is nil or T does not embed Model.
func NewScope[T any](db *gorm.DB, opts ...Option) *Scope[T] {
	if db == nil {
		panic("softdelete.NewScope: db must not be nil")
	}
	if _, ok := modelOf(new(T)); !ok {
		panic(fmt.Sprintf("softdelete.NewScope: %T: %v", *new(T), ErrNotSoftDeletable))
	}

	o := options{
		hooks:  CallbackHooks{},
		now:    time.Now,
		logger: slog.Default(),
		transact: func(db *gorm.DB, fn func(tx *gorm.DB) error) error {
			return db.Transaction(fn)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scope[T]{db: db, opts: o}
}

// WithDB returns a copy of the scope bound to db, typically an open transaction.
func (s *Scope[T]) WithDB(db *gorm.DB) *Scope[T] {
	c := *s
	c.db = db
	return &c
}

// NotDestroyed matches rows that are not deleted.
func NotDestroyed() clause.Expression {
	return clause.Eq{Column: markerColumn(), Value: Epoch}
}

// Destroyed matches rows that are deleted.
func Destroyed() clause.Expression {
	return clause.Gt{Column: markerColumn(), Value: Epoch}
}

// DestroyedBefore matches rows deleted strictly before t.
func DestroyedBefore(t time.Time) clause.Expression {
	return clause.And(Destroyed(), clause.Lt{Column: markerColumn(), Value: t.UTC()})
}

func markerColumn() clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: Column}
}

// Query returns the default-scoped query for T: destroyed rows are excluded.
// The returned *gorm.DB is a fresh session and may be reused for several
// finisher calls.
func (s *Scope[T]) Query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(new(T)).Where(NotDestroyed()).Session(&gorm.Session{})
}

// Unscoped returns a query for T that sees every row regardless of state.
func (s *Scope[T]) Unscoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(new(T)).Session(&gorm.Session{})
}

// DestroyedQuery returns a query for T restricted to destroyed rows.
func (s *Scope[T]) DestroyedQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(new(T)).Where(Destroyed()).Session(&gorm.Session{})
}

// Count counts rows that are not destroyed.
func (s *Scope[T]) Count(ctx context.Context) (int64, error) {
	return count(s.Query(ctx))
}

// CountIncludingDestroyed counts all rows.
func (s *Scope[T]) CountIncludingDestroyed(ctx context.Context) (int64, error) {
	return count(s.Unscoped(ctx))
}

// CountOnlyDestroyed counts destroyed rows.
func (s *Scope[T]) CountOnlyDestroyed(ctx context.Context) (int64, error) {
	return count(s.DestroyedQuery(ctx))
}

// FindOne fetches a live record by primary key.
// Returns gorm.ErrRecordNotFound if it does not exist or is destroyed.
func (s *Scope[T]) FindOne(ctx context.Context, id any) (*T, error) {
	return s.findOne(s.Query(ctx), id)
}

// FindOneIncludingDestroyed fetches a record by primary key whatever its state.
func (s *Scope[T]) FindOneIncludingDestroyed(ctx context.Context, id any) (*T, error) {
	return s.findOne(s.Unscoped(ctx), id)
}

// FindOneOnlyDestroyed fetches a destroyed record by primary key.
func (s *Scope[T]) FindOneOnlyDestroyed(ctx context.Context, id any) (*T, error) {
	return s.findOne(s.DestroyedQuery(ctx), id)
}

// Find fetches live records by primary key, ordered by key. It fails with
// gorm.ErrRecordNotFound unless every id matches.
func (s *Scope[T]) Find(ctx context.Context, ids ...any) ([]T, error) {
	return s.findMany(s.Query(ctx), ids)
}

// FindIncludingDestroyed is Find over all rows regardless of state.
func (s *Scope[T]) FindIncludingDestroyed(ctx context.Context, ids ...any) ([]T, error) {
	return s.findMany(s.Unscoped(ctx), ids)
}

// FindOnlyDestroyed is Find over destroyed rows only.
func (s *Scope[T]) FindOnlyDestroyed(ctx context.Context, ids ...any) ([]T, error) {
	return s.findMany(s.DestroyedQuery(ctx), ids)
}

// Exists reports whether a live row matches the criteria. The criteria take
// the same forms as (*gorm.DB).Where; a nil query matches any row.
func (s *Scope[T]) Exists(ctx context.Context, query any, args ...any) (bool, error) {
	return exists(s.Query(ctx), query, args)
}

// ExistsIncludingDestroyed is Exists over all rows regardless of state.
func (s *Scope[T]) ExistsIncludingDestroyed(ctx context.Context, query any, args ...any) (bool, error) {
	return exists(s.Unscoped(ctx), query, args)
}

// ExistsOnlyDestroyed is Exists over destroyed rows only.
func (s *Scope[T]) ExistsOnlyDestroyed(ctx context.Context, query any, args ...any) (bool, error) {
	return exists(s.DestroyedQuery(ctx), query, args)
}

// DeleteAll physically removes every row matching the criteria and returns
// the number of rows removed. It ignores the deletion marker entirely and
// runs no hooks. A nil query removes every row of the table.
func (s *Scope[T]) DeleteAll(ctx context.Context, query any, args ...any) (int64, error) {
	sch, err := s.schema()
	if err != nil {
		return 0, err
	}

	tx := s.db.WithContext(ctx).Session(&gorm.Session{
		SkipHooks:         true,
		AllowGlobalUpdate: query == nil,
	})
	if query != nil {
		tx = tx.Where(query, args...)
	}

	res := tx.Delete(new(T))
	if res.Error != nil {
		return 0, res.Error
	}

	s.opts.logger.InfoContext(ctx, "rows deleted",
		slog.String("table", sch.Table),
		slog.Int64("rows", res.RowsAffected),
	)
	return res.RowsAffected, nil
}

func (s *Scope[T]) findOne(base *gorm.DB, id any) (*T, error) {
	sch, err := s.schema()
	if err != nil {
		return nil, err
	}
	pk, err := primaryField(sch)
	if err != nil {
		return nil, err
	}

	var out T
	if err := base.Where(clause.Eq{Column: pkColumn(pk), Value: id}).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Scope[T]) findMany(base *gorm.DB, ids []any) ([]T, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", gorm.ErrRecordNotFound)
	}

	sch, err := s.schema()
	if err != nil {
		return nil, err
	}
	pk, err := primaryField(sch)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[fmt.Sprint(id)] = struct{}{}
	}

	var out []T
	err = base.Where(clause.IN{Column: pkColumn(pk), Values: ids}).
		Order(clause.OrderByColumn{Column: pkColumn(pk)}).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) < len(want) {
		return nil, fmt.Errorf("%w: found %d of %d %s", gorm.ErrRecordNotFound, len(out), len(want), sch.Table)
	}
	return out, nil
}

func (s *Scope[T]) schema() (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, err
	}
	return stmt.Schema, nil
}

func primaryField(sch *schema.Schema) (*schema.Field, error) {
	if sch.PrioritizedPrimaryField == nil {
		return nil, fmt.Errorf("softdelete: %s has no single primary key", sch.Table)
	}
	return sch.PrioritizedPrimaryField, nil
}

func pkColumn(f *schema.Field) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: f.DBName}
}

func count(q *gorm.DB) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func exists(base *gorm.DB, query any, args []any) (bool, error) {
	if query != nil {
		base = base.Where(query, args...)
	}
	n, err := count(base)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
