package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/master"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only and consumed by browser dashboards on
	// arbitrary origins; CORS on the regular REST routes does not cover
	// the websocket upgrade handshake.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamEntry struct {
	Endpoint string `json:"endpoint,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleMasterStream upgrades to a websocket and pushes each endpoint the
// Master Server iteration (C5) discovers as soon as it is yielded, rather
// than waiting for the whole run to finish.
func (s *Server) handleMasterStream(c *gin.Context) {
	masterEndpoint := c.Query("master")
	if masterEndpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "master query parameter required"})
		return
	}
	masterAddr, err := net.ResolveUDPAddr("udp", masterEndpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid master endpoint: " + err.Error()})
		return
	}
	region := 0
	if r := c.Query("region"); r != "" {
		if parsed, err := strconv.Atoi(r); err == nil {
			region = parsed
		}
	}
	filter := c.Query("filter")

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("master stream websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	_, err = s.engine.QueryMasterServer(ctx, masterAddr, master.Region(region), filter, func(addr *net.UDPAddr, _ net.Addr, queryErr error) {
		var entry streamEntry
		if queryErr != nil {
			entry = streamEntry{Error: queryErr.Error(), Done: true}
		} else {
			entry = streamEntry{Endpoint: addr.String()}
		}
		if writeErr := conn.WriteJSON(entry); writeErr != nil {
			log.Debug().Err(writeErr).Msg("master stream websocket write failed")
		}
	})
	if err != nil {
		conn.WriteJSON(streamEntry{Error: err.Error(), Done: true})
		return
	}
	conn.WriteJSON(streamEntry{Done: true})
}
