package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artisan-market-backend/internal/config"
	"github.com/ignatzorin/artisan-market-backend/internal/http/handlers"
	"github.com/ignatzorin/artisan-market-backend/internal/http/middleware"
	"github.com/ignatzorin/artisan-market-backend/internal/service"
)

// SetupRouter собирает gin.Engine со всеми маршрутами сервиса.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	itemHandler *handlers.ItemHandler,
	negotiationHandler *handlers.NegotiationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/items", itemHandler.List)
	api.GET("/items/:id", middleware.UUIDValidator("id"), itemHandler.Get)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/items", itemHandler.Create)
		protected.GET("/items/my", itemHandler.ListMine)

		protected.POST("/negotiations", negotiationHandler.Create)
		protected.GET("/negotiations", negotiationHandler.ListMy)
		protected.POST("/negotiations/:id/respond", middleware.UUIDValidator("id"), negotiationHandler.Respond)
		protected.POST("/negotiations/:id/cancel", middleware.UUIDValidator("id"), negotiationHandler.Cancel)
		protected.POST("/negotiations/:id/convert", middleware.UUIDValidator("id"), negotiationHandler.RetryConversion)
		protected.GET("/negotiations/:id/events", middleware.UUIDValidator("id"), negotiationHandler.History)
	}

	return r
}
