package main

import (
	"net/http"
	"time"

	"trunk-connector/internal/app"
	"trunk-connector/internal/auth"
	"trunk-connector/internal/httpapi"
	"trunk-connector/internal/rbac"
	"trunk-connector/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	App  *app.App
	Auth *auth.Manager
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.App.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := httpapi.Handlers{Connector: d.App.Coordinator}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.Auth))
	v1.Use(rbac.RequireAccount())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			aid, _ := auth.AccountID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "account_id": aid, "role": role})
		})

		// Provisioning mutates carrier and media resources: owner/super_admin only.
		conn := v1.Group("/connector")
		{
			mutate := rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin)
			conn.PATCH("/connect", mutate, h.Connect)
			conn.DELETE("/disconnect", mutate, h.Disconnect)

			// The voice runtime resolves dialed numbers with the hidden operator role.
			read := rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleViewer, rbac.RoleSuperAdmin, rbac.RoleNetworkOperator)
			conn.GET("/numbers/:phone_number", read, h.GetNumber)
		}
	}
}
