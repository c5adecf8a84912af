package user

import "time"

// CreateUserRequest represents the input for creating a new user.
type CreateUserRequest struct {
	Name      string `json:"name" form:"name" binding:"required,min=2,max=100"`
	Email     string `json:"email" form:"email" binding:"required,email"`
	Protected bool   `json:"protected" form:"protected"`
}

// UpdateUserRequest represents the input for updating an existing user.
type UpdateUserRequest struct {
	Name  string `json:"name" form:"name" binding:"required,min=2,max=100"`
	Email string `json:"email" form:"email" binding:"required,email"`
}

// EmptyTrashRequest selects which trashed users DELETE /trash/users purges.
// Before is an RFC 3339 timestamp; when omitted the configured retention applies.
type EmptyTrashRequest struct {
	Before *time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
}

// EmptyTrashResponse reports how many users were purged.
type EmptyTrashResponse struct {
	Purged int64 `json:"purged"`
}
