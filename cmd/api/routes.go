package main

import (
	"smarttv-backend/internal/httpapi"
	"smarttv-backend/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// Provider webhooks (public, signature-checked).
	if h.WebhookAuthToken != "" && h.WebhookURL != "" {
		r.POST("/webhooks/twilio/rooms", h.RoomStatusCallback)
	}

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleAdmin))
		{
			calls.POST("/:call_id/end", h.EndCall)
		}

		// ADMIN routes
		// The hidden sync_operator role may trigger and inspect sync, nothing else.
		admin := v1.Group("/admin")
		{
			sync := admin.Group("/sync")
			sync.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleOperator))
			sync.POST("/trigger", h.TriggerSync)
			sync.GET("/status", h.SyncStatus)

			reports := admin.Group("/calls")
			reports.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
			reports.GET("/summary", h.CallsSummary)
		}
	}
}
