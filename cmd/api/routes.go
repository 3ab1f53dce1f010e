package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"matchcall/internal/httpapi"
	"matchcall/internal/realtime"
	"matchcall/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Keep this file free of business logic. Handlers should delegate to internal modules.

func registerPublicRoutes(r *gin.Engine, db *sql.DB, rdb *redis.Client) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// readyz checks the backing stores; load balancers should use it.
	r.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerAuthRoutes leaves out the credential-less login in production.
func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers, production bool) {
	authGroup := r.Group("/v1/auth")
	{
		if !production {
			authGroup.POST("/login", h.Login)
		}
		authGroup.POST("/refresh", h.Refresh)
	}
}

func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers, gw *realtime.Gateway) {
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		// Signaling over websocket; the token may come as ?access_token=.
		v1.GET("/realtime", gw.Handle)

		calls := v1.Group("/calls")
		{
			calls.POST("", h.CreateCall)
			calls.GET("", h.ListCalls)
			calls.GET("/summary", h.CallsSummary)
			calls.GET("/:id", h.GetCall)
			calls.POST("/:id/active", h.MarkActive)
			calls.POST("/:id/terminal", h.MarkTerminal)
			calls.GET("/:id/events", h.CallEvents)
		}

		profiles := v1.Group("/profiles")
		{
			profiles.GET("/:user_id", h.GetProfile)
		}
	}
}
