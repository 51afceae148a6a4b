package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"autopilot/generation"

	"github.com/gin-gonic/gin"
)

// AgentAssistant is the activity log source for manual engagement actions
const AgentAssistant = "Assistant"

type ReplyRequest struct {
	Comment string `json:"comment" binding:"required"`
	Tone    string `json:"tone"`
}

type ReplyResponse struct {
	Sentiment generation.Sentiment `json:"sentiment"`
	Reply     string               `json:"reply"`
}

func (s *Server) registerAssistRoutes(r *gin.RouterGroup) {
	r.POST("/assist/reply", s.handleReply)
}

// handleReply classifies a comment and drafts a reply in one manual action
func (s *Server) handleReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Tone == "" {
		req.Tone = "friendly"
	}
	ctx := c.Request.Context()

	sentiment, err := s.assistant.AnalyzeSentiment(ctx, req.Comment)
	if err == nil {
		var reply string
		reply, err = s.assistant.GenerateReply(ctx, req.Comment, req.Tone)
		if err == nil {
			s.reporter.Success(ctx, AgentAssistant, fmt.Sprintf("Drafted %s reply to a %s comment", req.Tone, sentiment))
			c.JSON(http.StatusOK, ReplyResponse{Sentiment: sentiment, Reply: strings.TrimSpace(reply)})
			return
		}
	}

	s.reporter.Error(ctx, AgentAssistant, "Reply drafting failed: "+err.Error())
	status := http.StatusBadGateway
	if generation.IsCredentialError(err) {
		status = http.StatusUnauthorized
	}
	if errors.Is(err, generation.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
