package pkg

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/pagination"
	"github.com/simp-lee/recyclebin/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	defaultSort     = "id:desc"
	likeSuffix      = "__like"
)

// reservedParams are query parameters that never become filters.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"sort":      true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePageRequest reads page, page_size, sort and filter parameters from the
// query string. fallbackSort is used when no sort is given; an empty value
// means "id:desc".
func ParsePageRequest(c *gin.Context, fallbackSort string) domain.PageRequest {
	if fallbackSort == "" {
		fallbackSort = defaultSort
	}

	req := domain.PageRequest{
		Page:     clampInt(c.Query("page"), defaultPage, 1, math.MaxInt),
		PageSize: clampInt(c.Query("page_size"), defaultPageSize, 1, maxPageSize),
		Sort:     c.DefaultQuery("sort", fallbackSort),
		Filter:   make(map[string]string),
	}

	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] || len(values) == 0 || values[0] == "" {
			continue
		}
		req.Filter[key] = values[0]
	}
	return req
}

// clampInt parses raw, falling back to def when it is missing or below lo,
// and caps it at hi.
func clampInt(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo {
		return def
	}
	if n > hi {
		return hi
	}
	return n
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET.
func Paginate(offset, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(offset).Limit(limit)
	}
}

// Sort returns a GORM scope ordering by "field:asc" or "field:desc".
// Fields outside allowed or with an invalid name are ignored.
func Sort(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		field, direction, ok := strings.Cut(req.Sort, ":")
		if !ok {
			return db
		}
		field = strings.TrimSpace(field)
		direction = strings.ToLower(strings.TrimSpace(direction))

		if direction != "asc" && direction != "desc" {
			return db
		}
		if !isAllowed(field, allowed) {
			return db
		}

		return db.Order(clause.OrderByColumn{
			Column: column(field),
			Desc:   direction == "desc",
		})
	}
}

// Filter returns a GORM scope applying one condition per allowed filter key.
// Keys ending in "__like" match by substring; others match exactly.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			if field, ok := strings.CutSuffix(key, likeSuffix); ok {
				if isAllowed(field, allowed) {
					db = db.Where(clause.Like{Column: column(field), Value: "%" + value + "%"})
				}
				continue
			}
			if isAllowed(key, allowed) {
				db = db.Where(clause.Eq{Column: column(key), Value: value})
			}
		}
		return db
	}
}

// Page counts and fetches one page of T from q through a paginator. q must
// be a reusable query, such as the ones returned by softdelete.Scope. Filters
// apply to both the count and the fetch; sorting and paging only to the fetch.
// A page past the end is clamped to the last page.
func Page[T any](ctx context.Context, q *gorm.DB, req domain.PageRequest, sortable, filterable []string) (*pagination.Pagination[T], error) {
	filtered := q.Scopes(Filter(req, filterable)).Session(&gorm.Session{})

	p := pagination.NewPaginator(
		pagination.WithItemsPerPage[T](req.PageSize),
		pagination.WithItemTotalCallback[T](func(ctx context.Context) (int64, error) {
			var total int64
			err := filtered.WithContext(ctx).Count(&total).Error
			return total, err
		}),
		pagination.WithSliceCallback(func(ctx context.Context, offset, limit int) ([]T, error) {
			var items []T
			err := filtered.WithContext(ctx).
				Scopes(Sort(req, sortable), Paginate(offset, limit)).
				Find(&items).Error
			return items, err
		}),
	)
	return p.Paginate(ctx, req.Page)
}

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// isAllowed reports whether field is a valid identifier present in allowed.
func isAllowed(field string, allowed []string) bool {
	return validFieldName.MatchString(field) && slices.Contains(allowed, field)
}
