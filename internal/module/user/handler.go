package user

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/recyclebin/internal/domain"
	"github.com/simp-lee/recyclebin/internal/pkg"
	"github.com/simp-lee/recyclebin/internal/softdelete"
)

// trashDefaultSort lists the most recently deleted users first.
const trashDefaultSort = softdelete.Column + ":desc"

// UserHandler handles REST API requests for users and the user trash.
type UserHandler struct {
	svc domain.UserService
}

// NewUserHandler creates a new UserHandler with the given service.
func NewUserHandler(svc domain.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), req.Name, req.Email, req.Protected)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Created(c, user)
}

// Get handles GET /api/v1/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	user, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) {
	result, err := h.svc.ListUsers(c.Request.Context(), pkg.ParsePageRequest(c, ""))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Update handles PUT /api/v1/users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), id, req.Name, req.Email)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// Delete handles DELETE /api/v1/users/:id. The user is moved to the trash.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, nil)
}

// ListTrash handles GET /api/v1/trash/users.
func (h *UserHandler) ListTrash(c *gin.Context) {
	result, err := h.svc.ListDeletedUsers(c.Request.Context(), pkg.ParsePageRequest(c, trashDefaultSort))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// GetTrashed handles GET /api/v1/trash/users/:id.
func (h *UserHandler) GetTrashed(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	user, err := h.svc.GetDeletedUser(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// Restore handles POST /api/v1/trash/users/:id/restore.
func (h *UserHandler) Restore(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	user, err := h.svc.RestoreUser(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// Purge handles DELETE /api/v1/trash/users/:id.
func (h *UserHandler) Purge(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.svc.PurgeUser(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, nil)
}

// EmptyTrash handles DELETE /api/v1/trash/users.
func (h *UserHandler) EmptyTrash(c *gin.Context) {
	var req EmptyTrashRequest
	if !pkg.BindQueryAndValidate(c, &req) {
		return
	}

	n, err := h.svc.EmptyTrash(c.Request.Context(), req.Before)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, EmptyTrashResponse{Purged: n})
}

// Stats handles GET /api/v1/stats/users.
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.svc.UserStats(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, stats)
}

// idParam parses the "id" URL parameter. On failure it sends a validation
// error response and returns false.
func idParam(c *gin.Context) (uint, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return 0, false
	}
	return id, true
}

// parseID parses a positive integer id that fits in uint.
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, strconv.IntSize)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id: %s", raw)
	}
	return uint(id), nil
}
