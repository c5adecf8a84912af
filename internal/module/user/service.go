package user

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/simp-lee/pagination"
	"github.com/simp-lee/recyclebin/internal/domain"
)

// DefaultRetention is how long users stay in the trash when no retention is configured.
const DefaultRetention = 30 * 24 * time.Hour

// userService implements domain.UserService.
type userService struct {
	repo      domain.UserRepository
	retention time.Duration
	now       func() time.Time
}

// NewUserService creates a new UserService with the given repository.
// retention is the age after which EmptyTrash purges trashed users by default.
func NewUserService(repo domain.UserRepository, retention time.Duration) domain.UserService {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &userService{repo: repo, retention: retention, now: time.Now}
}

// CreateUser validates input, builds a User, and persists it via the repository.
// An email held by a trashed user is reported as taken: the user has to be
// restored or purged first.
func (s *userService) CreateUser(ctx context.Context, name, email string, protected bool) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if err := validateNameEmail(name, email); err != nil {
		return nil, err
	}
	if err := s.checkEmailNotInTrash(ctx, email); err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:      name,
		Email:     email,
		Protected: protected,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *userService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUsers returns a paginated list of users.
func (s *userService) ListUsers(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	return s.repo.List(ctx, req)
}

// UpdateUser loads the existing user, applies changes, and persists them.
func (s *userService) UpdateUser(ctx context.Context, id uint, name, email string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if err := validateNameEmail(name, email); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, email) {
		if err := s.checkEmailNotInTrash(ctx, email); err != nil {
			return nil, err
		}
	}

	user.Name = name
	user.Email = email
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser moves a user to the trash.
func (s *userService) DeleteUser(ctx context.Context, id uint) error {
	_, err := s.repo.Delete(ctx, id)
	return err
}

// ListDeletedUsers returns a paginated list of trashed users.
func (s *userService) ListDeletedUsers(ctx context.Context, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	return s.repo.ListDeleted(ctx, req)
}

// GetDeletedUser retrieves a trashed user by ID.
func (s *userService) GetDeletedUser(ctx context.Context, id uint) (*domain.User, error) {
	return s.repo.GetDeleted(ctx, id)
}

// RestoreUser takes a user out of the trash.
func (s *userService) RestoreUser(ctx context.Context, id uint) (*domain.User, error) {
	return s.repo.Restore(ctx, id)
}

// PurgeUser permanently removes one trashed user. Users that are not in the
// trash must be deleted first.
func (s *userService) PurgeUser(ctx context.Context, id uint) error {
	n, err := s.repo.Purge(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewAppError(domain.CodeNotFound, "user not found in trash", nil)
	}
	return nil
}

// EmptyTrash permanently removes users trashed before the cutoff. A nil
// before means now minus the retention period.
func (s *userService) EmptyTrash(ctx context.Context, before *time.Time) (int64, error) {
	now := s.now()
	cutoff := now.Add(-s.retention)
	if before != nil {
		cutoff = *before
	}
	if cutoff.After(now) {
		return 0, domain.NewAppError(domain.CodeValidation, "before must not be in the future", nil)
	}

	n, err := s.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "trash emptied",
		slog.Time("cutoff", cutoff),
		slog.Int64("purged", n),
	)
	return n, nil
}

// UserStats counts active, trashed and all users.
func (s *userService) UserStats(ctx context.Context) (*domain.TrashStats, error) {
	return s.repo.Stats(ctx)
}

func (s *userService) checkEmailNotInTrash(ctx context.Context, email string) error {
	inTrash, err := s.repo.EmailInTrash(ctx, email)
	if err != nil {
		return err
	}
	if inTrash {
		return domain.ErrEmailInTrash
	}
	return nil
}

// validateNameEmail checks that name and email are well formed.
func validateNameEmail(name, email string) error {
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return domain.NewAppError(domain.CodeValidation, "name is required", nil)
	case n < 2:
		return domain.NewAppError(domain.CodeValidation, "name must be at least 2 characters", nil)
	case n > 100:
		return domain.NewAppError(domain.CodeValidation, "name must be at most 100 characters", nil)
	}

	if email == "" {
		return domain.NewAppError(domain.CodeValidation, "email is required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.NewAppError(domain.CodeValidation, "email must be a valid email address", nil)
	}
	return nil
}
