package domain

import (
	"context"
	"time"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"

	"github.com/simp-lee/recyclebin/internal/softdelete"
)

// User represents a user in the system. Deleting a user moves it to the
// trash; it stays there until restored or purged.
type User struct {
	BaseModel
	Name      string `gorm:"size:100;not null" json:"name"`
	Email     string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Protected bool   `gorm:"not null;default:false" json:"protected"`
	softdelete.Model
}

// ErrProtectedUser is returned when a protected user is deleted.
var ErrProtectedUser = NewAppError(CodeConflict, "user is protected and cannot be deleted", nil)

// BeforeDelete vetoes deleting protected users.
func (u *User) BeforeDelete(*gorm.DB) error {
	if u.Protected {
		return ErrProtectedUser
	}
	return nil
}

// UserRepository defines the data access interface for users.
// Get, List, Update and Delete only see users that are not in the trash.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, req PageRequest) (*pagination.Pagination[User], error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uint) (*User, error)
	EmailInTrash(ctx context.Context, email string) (bool, error)

	GetDeleted(ctx context.Context, id uint) (*User, error)
	ListDeleted(ctx context.Context, req PageRequest) (*pagination.Pagination[User], error)
	Restore(ctx context.Context, id uint) (*User, error)
	Purge(ctx context.Context, ids ...uint) (int64, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*TrashStats, error)
}

// UserService defines the business logic interface for users.
type UserService interface {
	CreateUser(ctx context.Context, name, email string, protected bool) (*User, error)
	GetUser(ctx context.Context, id uint) (*User, error)
	ListUsers(ctx context.Context, req PageRequest) (*pagination.Pagination[User], error)
	UpdateUser(ctx context.Context, id uint, name, email string) (*User, error)
	DeleteUser(ctx context.Context, id uint) error

	ListDeletedUsers(ctx context.Context, req PageRequest) (*pagination.Pagination[User], error)
	GetDeletedUser(ctx context.Context, id uint) (*User, error)
	RestoreUser(ctx context.Context, id uint) (*User, error)
	PurgeUser(ctx context.Context, id uint) error
	EmptyTrash(ctx context.Context, before *time.Time) (int64, error)
	UserStats(ctx context.Context) (*TrashStats, error)
}
