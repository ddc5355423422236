package api

import (
	"net/http"
	"time"

	"github.com/danmuck/heritagectl/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		if _, err := s.store.Count(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	contributions := r.Group("/contributions")
	contributions.GET("", s.listContributions)
	contributions.GET("/recent", s.recentContributions)
	contributions.GET("/:id", s.getContribution)

	writes := contributions.Group("", auth.Require(s.writes))
	writes.POST("/artifacts", s.submitArtifact)
	writes.POST("/stories", s.submitStory)
	writes.POST("/recipes", s.submitRecipe)

	contributions.DELETE("/:id", auth.Require(s.admin), s.deleteContribution)

	r.GET("/stats", s.stats)

	admin := r.Group("/admin", auth.Require(s.admin))
	admin.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": s.registry.List()})
	})
	admin.GET("/services/:service", s.serviceStatus)
	admin.POST("/services/:service/actions/:action", s.serviceAction)
}
