package softdelete

import "errors"

var (
	// ErrDestroyAborted wraps the error of a hook that vetoed a destroy.
	ErrDestroyAborted = errors.New("softdelete: destroy aborted by hook")

	// ErrNotPersisted is returned when a record without a primary key is
	// destroyed or restored.
	ErrNotPersisted = errors.New("softdelete: record is not persisted")

	// ErrFrozen is returned when a destroyed record is written to again
	// before it has been restored.
	ErrFrozen = errors.New("softdelete: record is destroyed and frozen")

	// ErrNotSoftDeletable is returned when the record type does not embed Model.
	ErrNotSoftDeletable = errors.New("softdelete: type does not embed softdelete.Model")
)
