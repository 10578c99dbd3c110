package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"greendrake/rentals/internal/api/handlers"
	"greendrake/rentals/internal/api/middleware"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/metrics"
	"greendrake/rentals/internal/services"
)

// Services bundles what the main API needs.
type Services struct {
	Sessions auth.ISessionService
	Users    services.IUserService
	Listings services.IListingService
	Bookings services.IBookingService
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Order matters: the limiter keys on the session when there is one.
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OptionalAuthMiddleware(svc.Sessions))
	r.Use(rateLimiter.Limit())

	restUserHandler := handlers.NewRestUserHandler(svc.Users)
	restSessionHandler := handlers.NewRestSessionHandler(svc.Users, svc.Sessions)
	restListingHandler := handlers.NewRestListingHandler(svc.Listings)
	restBookingHandler := handlers.NewRestBookingHandler(svc.Bookings)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		v1.POST("/user", restUserHandler.Register)
		v1.GET("/user/:id", restUserHandler.GetUserByID)
		v1.POST("/session", restSessionHandler.CreateSession)
		v1.GET("/listing/:id", restListingHandler.GetListingByID)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(svc.Sessions))
		{
			authRequired.POST("/session/refresh", restSessionHandler.RefreshSession)

			authRequired.POST("/listing", restListingHandler.CreateListing)
			authRequired.POST("/listing/:id/publish", restListingHandler.PublishListing)
			authRequired.POST("/listing/:id/unpublish", restListingHandler.UnpublishListing)

			authRequired.POST("/listing/:id/booking", restBookingHandler.CreateBooking)
			authRequired.GET("/listing/:id/booking", restBookingHandler.ListBookings)
			authRequired.POST("/listing/:id/booking/:booking_id/confirm", restBookingHandler.ConfirmBooking)
			authRequired.POST("/listing/:id/booking/:booking_id/reject", restBookingHandler.RejectBooking)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(svc.Sessions), middleware.AdminMiddleware())
		{
			adminRequired.POST("/listing/:id/unpublish", restListingHandler.AdminUnpublishListing)
		}
	}

	return r
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SetupServiceRouter configures and returns the service Gin engine.
func SetupServiceRouter(cfg *config.Config, checks map[string]HealthCheck, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"mode": cfg.RunMode, "checks": results})
	})

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method string `json:"method"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
