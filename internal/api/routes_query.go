package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kongor-net/agql/internal/master"
)

// endpointRequest is the common shape for the single-target query routes.
type endpointRequest struct {
	Endpoint   string `json:"endpoint" binding:"required"` // host:port
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

func (r *endpointRequest) timeout() time.Duration {
	if r.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.TimeoutSec) * time.Second
}

func resolveUDPAddr(endpoint string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", endpoint)
}

func (s *Server) handleQueryInfo(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr, err := resolveUDPAddr(req.Endpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), req.timeout())
	defer cancel()

	info, err := s.engine.QueryInfo(ctx, addr)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleQueryPlayers(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr, err := resolveUDPAddr(req.Endpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), req.timeout())
	defer cancel()

	players, err := s.engine.QueryPlayers(ctx, addr)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

func (s *Server) handleQueryRules(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr, err := resolveUDPAddr(req.Endpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), req.timeout())
	defer cancel()

	rules, err := s.engine.QueryRules(ctx, addr)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// masterRequest parameterizes a full Master Server iteration.
type masterRequest struct {
	Master     string `json:"master" binding:"required"` // host:port
	Region     int    `json:"region"`
	Filter     string `json:"filter"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

func (r *masterRequest) timeout() time.Duration {
	if r.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSec) * time.Second
}

func (s *Server) handleQueryMaster(c *gin.Context) {
	var req masterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	masterAddr, err := resolveUDPAddr(req.Master)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid master endpoint: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), req.timeout())
	defer cancel()

	addrs, err := s.engine.QueryMasterServer(ctx, masterAddr, master.Region(req.Region), req.Filter, nil)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error(), "partial": addrStrings(addrs)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": addrStrings(addrs)})
}

func addrStrings(addrs []*net.UDPAddr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
