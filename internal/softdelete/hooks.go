package softdelete

import (
	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
)

// Hooks wraps the soft-delete write of a single record. Implementations run
// whatever must happen around a destroy and call destroy exactly once, or not
// at all to veto it. A non-nil error aborts the destroy and rolls back tx.
type Hooks interface {
	AroundDestroy(tx *gorm.DB, record any, destroy func(tx *gorm.DB) error) error
}

// HooksFunc adapts a function to the Hooks interface.
type HooksFunc func(tx *gorm.DB, record any, destroy func(tx *gorm.DB) error) error

// AroundDestroy calls f.
func (f HooksFunc) AroundDestroy(tx *gorm.DB, record any, destroy func(tx *gorm.DB) error) error {
	return f(tx, record, destroy)
}

// CallbackHooks runs the record's GORM delete hooks (BeforeDelete and
// AfterDelete) around the soft-delete write, the same hooks a physical
// db.Delete(record) would run.
type CallbackHooks struct{}

// AroundDestroy implements Hooks.
func (CallbackHooks) AroundDestroy(tx *gorm.DB, record any, destroy func(tx *gorm.DB) error) error {
	if h, ok := record.(callbacks.BeforeDeleteInterface); ok {
		if err := h.BeforeDelete(tx); err != nil {
			return err
		}
	}

	if err := destroy(tx); err != nil {
		return err
	}

	if h, ok := record.(callbacks.AfterDeleteInterface); ok {
		return h.AfterDelete(tx)
	}
	return nil
}

// NoHooks performs the write with nothing around it.
type NoHooks struct{}

// AroundDestroy implements Hooks.
func (NoHooks) AroundDestroy(tx *gorm.DB, _ any, destroy func(tx *gorm.DB) error) error {
	return destroy(tx)
}
