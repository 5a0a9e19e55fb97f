package controller

import (
	"sync"

	"agencyhub/utils"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// SyncProgressHub fans sync progress snapshots out to connected WebSocket
// observers. Implements utils.ProgressPublisher.
type SyncProgressHub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *logrus.Entry
}

func NewSyncProgressHub(logger *logrus.Entry) *SyncProgressHub {
	return &SyncProgressHub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Publish sends one snapshot to every observer; dead connections are dropped.
func (h *SyncProgressHub) Publish(progress utils.SyncProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteJSON(progress); err != nil {
			h.logger.WithError(err).Debug("dropping stale progress observer")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// HandleProgressWS holds the connection open until the client hangs up.
func (h *SyncProgressHub) HandleProgressWS(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		c.Close()
	}()

	// Reads only serve to detect disconnects.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
