package softdelete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Create inserts record with its deletion marker set to Epoch, whatever
// value the caller left in DeletedAt.
func (s *Scope[T]) Create(ctx context.Context, record *T) error {
	m, err := s.model(record)
	if err != nil {
		return err
	}
	if m.frozen {
		return ErrFrozen
	}
	m.resetMarker()
	return s.db.WithContext(ctx).Create(record).Error
}

// Update writes record back to its live row. With no columns every field
// except the primary key, the deletion marker and created_at is written.
// Returns gorm.ErrRecordNotFound if the row is gone or destroyed, and
// ErrFrozen if record itself was destroyed.
func (s *Scope[T]) Update(ctx context.Context, record *T, columns ...string) error {
	m, err := s.model(record)
	if err != nil {
		return err
	}
	if m.frozen {
		return ErrFrozen
	}
	sch, pk, _, err := s.identify(ctx, record)
	if err != nil {
		return err
	}

	tx := s.db.WithContext(ctx).Model(record).Where(NotDestroyed())
	if len(columns) > 0 {
		selected := append([]string(nil), columns...)
		for _, f := range sch.Fields {
			if f.AutoUpdateTime > 0 {
				selected = append(selected, f.DBName)
			}
		}
		tx = tx.Select(selected)
	} else {
		omit := []string{pk.DBName, Column}
		if f := sch.LookUpField("created_at"); f != nil {
			omit = append(omit, f.DBName)
		}
		tx = tx.Select("*").Omit(omit...)
	}

	res := tx.Updates(record)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Destroy marks record as deleted in place of removing its row.
//
// The configured Hooks run around a single UPDATE of the deletion marker,
// keyed by primary key and limited to a live row, inside a transaction
// (joining one already open on the scope's db). A stale copy of a row that is
// already destroyed gets gorm.ErrRecordNotFound and the stored deletion time
// is kept. The write itself skips GORM hooks and validation. On success
// record carries the deletion time and is frozen. If a hook fails or vetoes,
// the returned error wraps ErrDestroyAborted and record is left unchanged.
func (s *Scope[T]) Destroy(ctx context.Context, record *T) error {
	m, err := s.model(record)
	if err != nil {
		return err
	}
	if m.frozen {
		return ErrFrozen
	}
	sch, pk, id, err := s.identify(ctx, record)
	if err != nil {
		return err
	}

	at := s.opts.now().UTC().Truncate(time.Microsecond)
	prev := m.DeletedAt

	var (
		wrote    bool
		writeErr error
	)
	err = s.opts.transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return s.opts.hooks.AroundDestroy(tx, record, func(tx *gorm.DB) error {
			writeErr = setMarker[T](tx, pk, id, at, NotDestroyed())
			if writeErr != nil {
				return writeErr
			}
			wrote = true
			m.DeletedAt = at
			return nil
		})
	})

	switch {
	case err != nil:
		m.DeletedAt = prev
		if writeErr != nil && errors.Is(err, writeErr) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDestroyAborted, err)
	case !wrote:
		m.DeletedAt = prev
		return ErrDestroyAborted
	}

	m.frozen = true
	s.opts.logger.DebugContext(ctx, "record destroyed",
		slog.String("table", sch.Table),
		slog.Any("id", id),
		slog.Time("deleted_at", at),
	)
	return nil
}

// DestroyByID loads the live record with the given primary key and destroys
// it. The read and the destroy share one transaction.
func (s *Scope[T]) DestroyByID(ctx context.Context, id any) (*T, error) {
	var record *T
	err := s.opts.transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		scoped := s.WithDB(tx)

		var err error
		record, err = scoped.FindOne(ctx, id)
		if err != nil {
			return err
		}
		return scoped.Destroy(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DestroyWhere destroys every live record matching the criteria, one by one
// through Destroy, in a single transaction. Either all of them are destroyed
// or none is.
func (s *Scope[T]) DestroyWhere(ctx context.Context, query any, args ...any) ([]T, error) {
	var destroyed []T
	err := s.opts.transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		scoped := s.WithDB(tx)

		q := scoped.Query(ctx)
		if query != nil {
			q = q.Where(query, args...)
		}
		var records []T
		if err := q.Find(&records).Error; err != nil {
			return err
		}

		for i := range records {
			if err := scoped.Destroy(ctx, &records[i]); err != nil {
				return err
			}
		}
		destroyed = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return destroyed, nil
}

// Restore resets the deletion marker of record to Epoch, skipping hooks.
// Restoring a record that is not destroyed rewrites the same marker and
// succeeds. Returns gorm.ErrRecordNotFound if the row no longer exists.
func (s *Scope[T]) Restore(ctx context.Context, record *T) error {
	m, err := s.model(record)
	if err != nil {
		return err
	}
	sch, pk, id, err := s.identify(ctx, record)
	if err != nil {
		return err
	}

	if err := setMarker[T](s.db.WithContext(ctx), pk, id, Epoch); err != nil {
		return err
	}

	m.DeletedAt = Epoch
	m.frozen = false
	s.opts.logger.DebugContext(ctx, "record restored",
		slog.String("table", sch.Table),
		slog.Any("id", id),
	)
	return nil
}

// IsDestroyed re-reads the deletion marker of record from storage, refreshes
// the loaded value and reports whether the record is destroyed.
func (s *Scope[T]) IsDestroyed(ctx context.Context, record *T) (bool, error) {
	m, err := s.model(record)
	if err != nil {
		return false, err
	}
	_, pk, id, err := s.identify(ctx, record)
	if err != nil {
		return false, err
	}

	var marks []time.Time
	err = s.Unscoped(ctx).
		Where(clause.Eq{Column: pkColumn(pk), Value: id}).
		Limit(1).
		Pluck(Column, &marks).Error
	if err != nil {
		return false, err
	}
	if len(marks) == 0 {
		return false, gorm.ErrRecordNotFound
	}

	m.DeletedAt = marks[0].UTC()
	return m.IsDestroyed(), nil
}

// setMarker writes at to the marker of the row with primary key id. Extra
// conds narrow the write; no matching row is gorm.ErrRecordNotFound.
func setMarker[T any](db *gorm.DB, pk *schema.Field, id any, at time.Time, conds ...clause.Expression) error {
	where := append([]clause.Expression{clause.Eq{Column: pkColumn(pk), Value: id}}, conds...)
	res := db.Session(&gorm.Session{SkipHooks: true}).
		Model(new(T)).
		Where(clause.And(where...)).
		UpdateColumn(Column, at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// identify returns the schema, primary key field and primary key value of a
// persisted record.
func (s *Scope[T]) identify(ctx context.Context, record *T) (*schema.Schema, *schema.Field, any, error) {
	sch, err := s.schema()
	if err != nil {
		return nil, nil, nil, err
	}
	pk, err := primaryField(sch)
	if err != nil {
		return nil, nil, nil, err
	}

	id, zero := pk.ValueOf(ctx, reflect.ValueOf(record))
	if zero {
		return nil, nil, nil, ErrNotPersisted
	}
	return sch, pk, id, nil
}

func (s *Scope[T]) model(record *T) (*Model, error) {
	if record == nil {
		return nil, ErrNotPersisted
	}
	m, ok := modelOf(record)
	if !ok {
		return nil, ErrNotSoftDeletable
	}
	return m, nil
}
