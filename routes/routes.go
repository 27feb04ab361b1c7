package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	config "github.com/phillip/volunteer-events-go/config"
	controllers "github.com/phillip/volunteer-events-go/controllers"
	middleware "github.com/phillip/volunteer-events-go/middleware"
	models "github.com/phillip/volunteer-events-go/models"
	realtime "github.com/phillip/volunteer-events-go/realtime"
	services "github.com/phillip/volunteer-events-go/services"
)

// Deps are the handlers' collaborators. Images may be nil when uploads are
// not configured.
type Deps struct {
	Events        *services.EventService
	Registrations *services.RegistrationService
	Notifications *services.NotificationService
	Stream        realtime.Subscriber
	Images        controllers.ImageStore
	// Health reports whether the backing services are reachable.
	Health func(*gin.Context) error
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, d Deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// protected
	auth := middleware.AuthMiddleware(cfg)
	managers := middleware.RequireRole(models.RoleManager, models.RoleAdmin)

	events := r.Group("/events")
	events.Use(auth)
	{
		events.GET("", controllers.ListEvents(d.Events))
		events.GET("/my/list", managers, controllers.ListMyEvents(d.Events))
		events.GET("/:id", controllers.GetEvent(d.Events))
		events.POST("", managers, controllers.CreateEvent(d.Events))
		events.PATCH("/:id", managers, controllers.UpdateEvent(d.Events))
		events.DELETE("/:id", managers, controllers.DeleteEvent(d.Events))
		events.POST("/:id/images", managers, controllers.UploadEventImages(d.Events, d.Images))
		events.PUT("/:id/approve", middleware.RequireRole(models.RoleAdmin), controllers.ApproveEvent(d.Events))
		events.PUT("/:id/status", managers, controllers.TransitionEventStatus(d.Events))
	}

	regs := r.Group("/registrations")
	regs.Use(auth)
	{
		regs.POST("/:eventId", controllers.RegisterForEvent(d.Registrations))
		regs.PUT("/:id/cancel", controllers.CancelRegistration(d.Registrations))
		regs.PUT("/:id/feedback", controllers.SubmitFeedback(d.Registrations))
		regs.GET("/my", controllers.ListMyRegistrations(d.Registrations))
		regs.GET("/:id", controllers.GetRegistration(d.Registrations))
	}

	manager := r.Group("/manager")
	manager.Use(auth, managers)
	{
		manager.PUT("/registrations/:id/approve", controllers.ReviewRegistration(d.Registrations))
		manager.PUT("/registrations/:id/complete", controllers.CompleteRegistration(d.Registrations))
		manager.PUT("/registrations/:id/no-show", controllers.MarkNoShow(d.Registrations))
		manager.POST("/events/:eventId/complete-batch", controllers.CompleteRegistrationsBatch(d.Registrations))
		manager.GET("/events/:eventId/registrations", controllers.ListEventRegistrations(d.Registrations))
	}

	notifs := r.Group("/notifications")
	notifs.Use(auth) // protected
	{
		notifs.GET("", controllers.ListNotifications(d.Notifications))
		notifs.GET("/unread-count", controllers.UnreadNotificationCount(d.Notifications))
		notifs.GET("/stream", controllers.StreamNotifications(d.Stream))
		notifs.PATCH("/:id/read", controllers.MarkNotificationRead(d.Notifications))
		notifs.PUT("/mark-all-read", controllers.MarkAllNotificationsRead(d.Notifications))
		notifs.DELETE("/clear-all", controllers.ClearNotifications(d.Notifications))
		notifs.DELETE("/:id", controllers.DeleteNotification(d.Notifications))
	}
}
