package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{
			"queue_depth":          s.engine.QueueDepth(),
			"outstanding_sessions": s.engine.OutstandingSessions(),
		})
		return
	}
	c.JSON(http.StatusOK, s.health.Latest())
}
