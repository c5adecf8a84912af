package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering business module.
// Each module mounts its routes, trash routes included, on the API group.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
}
