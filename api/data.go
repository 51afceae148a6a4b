package api

import (
	"net/http"
	"strings"

	"autopilot/types"

	"github.com/gin-gonic/gin"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) registerDataRoutes(r *gin.RouterGroup) {
	r.GET("/logs", s.handleLogs)
	r.GET("/posts", s.handlePosts)
	r.GET("/features", s.handleFeatures)
	r.PUT("/features", s.handleUpdateFeatures)
	r.PUT("/credential", s.handleCredential)
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.reporter.Entries())
}

func (s *Server) handlePosts(c *gin.Context) {
	posts, err := s.repo.Posts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load posts: " + err.Error()})
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := posts[:0]
		for _, p := range posts {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}
	c.JSON(http.StatusOK, nonNil(posts))
}

func (s *Server) handleFeatures(c *gin.Context) {
	features, err := s.repo.Features(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, features)
}

func (s *Server) handleUpdateFeatures(c *gin.Context) {
	var features types.FeatureToggles
	if err := c.ShouldBindJSON(&features); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.repo.SaveFeatures(c.Request.Context(), features); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, features)
}

// handleCredential stores the user supplied API key; it is never echoed back
func (s *Server) handleCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}
	if err := s.repo.SaveCredential(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func nonNil(posts []types.GeneratedPost) []types.GeneratedPost {
	if posts == nil {
		return []types.GeneratedPost{}
	}
	return posts
}
