package routes

import (
	"github.com/gin-gonic/gin"

	"items-api/internal/controller"
	"items-api/internal/middleware"
)

// Router wires the item endpoints behind auth. users resolves the current
// user for the auth middleware; it is typically the same repository store the
// controller uses.
func Router(ic *controller.ItemController, users middleware.UserLoader) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Health for load balancers and K8s probes
	router.GET("/health", controller.Health)
	router.GET("/ready", controller.Ready)

	api := router.Group("")
	api.Use(middleware.Auth(users))
	{
		api.GET("/items", ic.GetItems)
		api.POST("/users/:user_id/items", ic.CreateItem)
		api.GET("/users/:user_id/items", ic.GetUserItems)
		api.GET("/users/:user_id/items/:item_id", ic.GetItem)
		api.PATCH("/users/:user_id/items/:item_id", ic.PatchItem)
		api.DELETE("/users/:user_id/items/:item_id", ic.DeleteItem)
	}

	return router
}
