// Package softdelete marks GORM records as deleted instead of removing their
// rows, and builds the queries that keep marked rows out of normal reads.
//
// A record type opts in by embedding Model. All reads go through a Scope,
// whose Query method always conjoins the not-deleted predicate; the
// *IncludingDestroyed and *OnlyDestroyed methods are the only way to see
// deleted rows.
package softdelete

import (
	"time"

	"gorm.io/gorm"
)

// Column is the database column holding the deletion marker.
const Column = "deleted_at"

// Epoch is the deletion marker of a record that is not deleted.
// Any later instant means "deleted at that instant".
var Epoch = time.Unix(0, 0).UTC()

// Model is embedded by record types that are soft-deletable.
//
// DeletedAt is never NULL: it holds Epoch while the record is alive and the
// deletion instant once the record has been destroyed.
type Model struct {
	DeletedAt time.Time `gorm:"column:deleted_at;not null;index;default:'1970-01-01 00:00:00+00:00'" json:"deleted_at"`

	frozen bool
}

// IsDestroyed reports whether the loaded deletion marker is past Epoch.
func (m *Model) IsDestroyed() bool {
	return IsDestroyedAt(m.DeletedAt)
}

// Frozen reports whether the record was destroyed through a Scope and has not
// been restored since. Frozen records are rejected by Scope.Update.
func (m *Model) Frozen() bool {
	return m.frozen
}

// BeforeCreate resets the marker to Epoch before insert: a record is never
// born deleted. Only Destroy moves the marker past Epoch.
func (m *Model) BeforeCreate(*gorm.DB) error {
	m.resetMarker()
	return nil
}

func (m *Model) softDeleteModel() *Model {
	return m
}

func (m *Model) resetMarker() {
	m.DeletedAt = Epoch
}

// IsDestroyedAt reports whether t marks a deleted record.
func IsDestroyedAt(t time.Time) bool {
	return t.After(Epoch)
}

// record is implemented by every type embedding Model. The method is
// unexported so only this package can reach the marker setter.
type record interface {
	softDeleteModel() *Model
}

func modelOf(v any) (*Model, bool) {
	r, ok := v.(record)
	if !ok {
		return nil, false
	}
	return r.softDeleteModel(), true
}
