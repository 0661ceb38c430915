package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/propdesk/agent-console/internal/auth"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/internal/credentials"
	"github.com/propdesk/agent-console/internal/handlers"
	"github.com/propdesk/agent-console/internal/journal"
	"github.com/propdesk/agent-console/internal/middleware"
	"github.com/propdesk/agent-console/internal/realtime"
)

// Deps bundles what the router needs.
type Deps struct {
	Console     *console.Console
	Hub         *realtime.Hub
	Journal     *journal.Service
	Credentials *credentials.Store
	JWT         *iauth.JWTService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Console == nil {
		return nil, fmt.Errorf("console must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credential store must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	sessionHandler := handlers.NewSessionHandler(deps.Credentials, deps.JWT)

	// Public session routes: the daemon binds to loopback, so these are
	// reachable only from the seat's own machine.
	session := r.Group("/api/session")
	{
		session.POST("/configure", sessionHandler.Configure)
		session.POST("/login", sessionHandler.Login)
	}

	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	notificationHandler := handlers.NewNotificationHandler(deps.Console, deps.Journal)
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.State)
		notifications.POST("/refresh", notificationHandler.Refresh)
		notifications.GET("/history", notificationHandler.History)
		notifications.POST("/:category/:id/accept", notificationHandler.Accept)
		notifications.POST("/:category/:id/reject", notificationHandler.Reject)
	}

	settingsHandler := handlers.NewSettingsHandler(deps.Console)
	settings := api.Group("/settings")
	{
		settings.GET("", settingsHandler.List)
		settings.POST("/:category/toggle", settingsHandler.Toggle)
	}

	presenceHandler := handlers.NewPresenceHandler(deps.Console)
	api.GET("/presence", presenceHandler.Get)
	api.PUT("/presence", presenceHandler.Set)

	if deps.Hub != nil {
		streamHandler := handlers.NewStreamHandler(deps.Hub)
		api.GET("/stream", streamHandler.Serve)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
