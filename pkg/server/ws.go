// WebSocket status stream
//
// Each connected client receives the current status immediately and a
// fresh frame whenever the controller status changes. The broadcast
// loop polls the controller; per-client send channels are bounded and
// drop frames when a client cannot keep up.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan statusReply
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan statusReply, 16),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) send(msg statusReply) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Debug("dropping status frame to ws client %d (channel full)", c.id)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump discards inbound messages; the stream is one-directional
// but the read loop is required to process control frames.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.server.logger.Debug("ws client %d read error: %v", c.id, err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("ws upgrade failed")
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.logger.Debug("ws client %d connected", client.id)

	go client.writePump()
	client.send(s.currentStatus())

	client.readPump()
}

func (s *Server) removeClient(client *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()
	s.logger.Debug("ws client %d disconnected", client.id)
}

// statusBroadcastLoop pushes a frame to every client when the
// controller status changes.
func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(statusPollPeriod)
	defer ticker.Stop()

	var last statusReply
	for s.running.Load() {
		<-ticker.C
		cur := s.currentStatus()
		if reflect.DeepEqual(cur, last) {
			continue
		}
		last = cur

		s.wsClientMu.RLock()
		for _, client := range s.wsClients {
			client.send(cur)
		}
		s.wsClientMu.RUnlock()
	}
}
