package domain

import "time"

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model, whose DeletedAt turns on GORM's nullable soft
// delete; soft-deletable models embed softdelete.Model instead.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageRequest holds pagination, sorting, and filtering parameters.
type PageRequest struct {
	Page     int
	PageSize int
	Sort     string
	Filter   map[string]string
}

// TrashStats counts the rows of a soft-deletable table by state.
type TrashStats struct {
	Active  int64 `json:"active"`
	Deleted int64 `json:"deleted"`
	Total   int64 `json:"total"`
}
