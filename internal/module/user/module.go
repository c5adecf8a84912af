package user

import "github.com/gin-gonic/gin"

// UserModule implements the app.Module interface for the user domain.
type UserModule struct {
	handler *UserHandler
}

// NewModule creates a new UserModule with the given handler.
// Panics if h is nil.
func NewModule(h *UserHandler) *UserModule {
	if h == nil {
		panic("user.NewModule: handler must not be nil")
	}
	return &UserModule{handler: h}
}

// RegisterRoutes registers the user and user trash API routes.
func (m *UserModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/users", m.handler.Create)
	api.GET("/users", m.handler.List)
	api.GET("/users/:id", m.handler.Get)
	api.PUT("/users/:id", m.handler.Update)
	api.DELETE("/users/:id", m.handler.Delete)

	trash := api.Group("/trash/users")
	trash.GET("", m.handler.ListTrash)
	trash.DELETE("", m.handler.EmptyTrash)
	trash.GET("/:id", m.handler.GetTrashed)
	trash.POST("/:id/restore", m.handler.Restore)
	trash.DELETE("/:id", m.handler.Purge)

	api.GET("/stats/users", m.handler.Stats)
}
