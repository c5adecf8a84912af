package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/recyclebin/internal/domain"
	"github.com/simp-lee/recyclebin/internal/pkg"
	"github.com/simp-lee/recyclebin/internal/softdelete"
)

// Allowed fields for sorting and filtering in list queries.
var (
	allowedSortFields   = []string{"id", "name", "email", "created_at", "updated_at"}
	trashSortFields     = append(append([]string(nil), allowedSortFields...), softdelete.Column)
	allowedFilterFields = []string{"name", "email"}
)

// userRepository implements domain.UserRepository on a soft-delete scope.
// Every read goes through the scope, so trashed users never leak into the
// regular queries.
type userRepository struct {
	db    *gorm.DB
	users *softdelete.Scope[domain.User]
}

// NewUserRepository creates a new UserRepository backed by the given GORM database.
// opts configure the underlying soft-delete scope (logger, clock, hooks).
func NewUserRepository(db *gorm.DB, opts ...softdelete.Option) domain.UserRepository {
	opts = append([]softdelete.Option{softdelete.WithTransaction(pkg.WithTx)}, opts...)
	return &userRepository{
		db:    db,
		users: softdelete.NewScope[domain.User](db, opts...),
	}
}

// Create inserts a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return mapError(r.users.Create(ctx, user))
}

// GetByID retrieves a user that is not in the trash.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	user, err := r.users.FindOne(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// GetByEmail retrieves a user that is not in the trash by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.users.Query(ctx).Where(clause.Eq{Column: "email", Value: email}).Take(&user).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// List returns a paginated, sorted, and filtered list of users.
func (r *userRepository) List(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	result, err := pkg.Page[domain.User](ctx, r.users.Query(ctx), req, allowedSortFields, allowedFilterFields)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// Update saves changes to a user that is not in the trash.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	return mapError(r.users.Update(ctx, user))
}

// Delete moves a user to the trash and returns it with its deletion time.
func (r *userRepository) Delete(ctx context.Context, id uint) (*domain.User, error) {
	user, err := r.users.DestroyByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// EmailInTrash reports whether a trashed user holds email.
func (r *userRepository) EmailInTrash(ctx context.Context, email string) (bool, error) {
	found, err := r.users.ExistsOnlyDestroyed(ctx, clause.Eq{Column: "email", Value: email})
	if err != nil {
		return false, mapError(err)
	}
	return found, nil
}

// GetDeleted retrieves a trashed user.
func (r *userRepository) GetDeleted(ctx context.Context, id uint) (*domain.User, error) {
	user, err := r.users.FindOneOnlyDestroyed(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// ListDeleted returns a page of trashed users. Besides the regular fields
// the trash can be sorted by deleted_at.
func (r *userRepository) ListDeleted(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	result, err := pkg.Page[domain.User](ctx, r.users.DestroyedQuery(ctx), req, trashSortFields, allowedFilterFields)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// Restore takes a user out of the trash.
func (r *userRepository) Restore(ctx context.Context, id uint) (*domain.User, error) {
	var user *domain.User
	err := pkg.WithTx(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		scoped := r.users.WithDB(tx)

		var err error
		user, err = scoped.FindOneOnlyDestroyed(ctx, id)
		if err != nil {
			return err
		}
		return scoped.Restore(ctx, user)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// Purge physically removes the given users from the trash. Users that are
// not in the trash are left alone. It returns the number of rows removed.
func (r *userRepository) Purge(ctx context.Context, ids ...uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	n, err := r.users.DeleteAll(ctx, clause.And(
		softdelete.Destroyed(),
		clause.IN{Column: clause.PrimaryColumn, Values: values},
	))
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// PurgeBefore physically removes every user trashed before cutoff.
func (r *userRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.users.DeleteAll(ctx, softdelete.DestroyedBefore(cutoff))
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// Stats counts users by state within one transaction.
func (r *userRepository) Stats(ctx context.Context) (*domain.TrashStats, error) {
	var stats domain.TrashStats
	err := pkg.WithTx(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		scoped := r.users.WithDB(tx)

		var err error
		if stats.Active, err = scoped.Count(ctx); err != nil {
			return err
		}
		if stats.Deleted, err = scoped.CountOnlyDestroyed(ctx); err != nil {
			return err
		}
		stats.Total, err = scoped.CountIncludingDestroyed(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &stats, nil
}

// mapError converts GORM and soft-delete errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *domain.AppError
	switch {
	case errors.As(err, &appErr):
		// A model hook vetoed the operation with a domain error.
		return domain.NewAppError(appErr.Code, appErr.Message, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, softdelete.ErrDestroyAborted):
		return domain.NewAppError(domain.CodeConflict, "delete was rejected", err)
	case errors.Is(err, softdelete.ErrFrozen):
		return domain.NewAppError(domain.CodeInTrash, domain.ErrInTrash.Message, err)
	case errors.Is(err, softdelete.ErrNotPersisted):
		return domain.NewAppError(domain.CodeValidation, "user has no id", err)
	case errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err):
		return domain.NewAppError(domain.CodeAlreadyExists, "already exists", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not all dialectors translate driver errors to
// gorm.ErrDuplicatedKey (the pure-Go SQLite driver does not).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
