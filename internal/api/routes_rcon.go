package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/rcon"
)

// rconExecRequest issues a one-shot RCON connect/authenticate/execute/close
// round trip. agql holds no persistent RCON connections across requests —
// each call dials fresh, matching the stateless nature of the REST facade.
type rconExecRequest struct {
	Endpoint string `json:"endpoint" binding:"required"` // host:port
	Password string `json:"password" binding:"required"`
	Command  string `json:"command" binding:"required"`
}

func (s *Server) handleRCONExec(c *gin.Context) {
	var req rconExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	correlationID := uuid.NewString()

	conn, err := rcon.Dial(c.Request.Context(), req.Endpoint)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer conn.Close()

	if err := conn.Authenticate(req.Password); err != nil {
		s.emitRCONAuth(c.Request.Context(), req.Endpoint, false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	s.emitRCONAuth(c.Request.Context(), req.Endpoint, true)

	response, err := conn.Execute(req.Command)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if s.audit != nil {
		if err := s.audit.Record(req.Endpoint, req.Command, response, correlationID); err != nil {
			// Audit failures never block the response to the caller; the
			// command already executed against the game server.
			_ = err
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"response":       response,
		"correlation_id": correlationID,
	})
}

func (s *Server) emitRCONAuth(ctx context.Context, addr string, ok bool) {
	if s.eventBus == nil {
		return
	}
	eventType := events.EventRCONAuthenticated
	if !ok {
		eventType = events.EventRCONAuthFailed
	}
	s.eventBus.Emit(ctx, events.Event{
		Type:    eventType,
		Source:  "api",
		Payload: events.RCONAuthPayload{Addr: addr, OK: ok},
	})
}
