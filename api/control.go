package api

import (
	"errors"
	"net/http"

	"autopilot/orchestrator"
	"autopilot/types"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerControlRoutes(r *gin.RouterGroup) {
	r.GET("/status", s.handleStatus)
	r.PUT("/config", s.handleUpdateConfig)
	r.POST("/start", s.handleSetActive(true))
	r.POST("/stop", s.handleSetActive(false))
}

// handleStatus returns phase, config, recent activity and posts
func (s *Server) handleStatus(c *gin.Context) {
	resp := s.state.Snapshot()
	resp.Logs = s.reporter.Entries()

	posts, err := s.repo.Posts(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load posts for status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load posts: " + err.Error()})
		return
	}
	resp.Posts = nonNil(posts)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg types.CycleConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.loop.UpdateConfig(c.Request.Context(), cfg))
}

// handleSetActive flips isActive on the live config
func (s *Server) handleSetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, s.loop.SetActive(c.Request.Context(), active))
	}
}

func (s *Server) respond(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		s.logger.WithError(err).Error("Config update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, s.state.Snapshot())
	}
}
