// HTTP control surface
//
// The server exposes the alignment controller over REST plus a
// WebSocket status stream. Handlers translate controller errors to
// status codes by error category; all responses are JSON except the
// metrics exposition.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"alignd/pkg/align"
	"alignd/pkg/errors"
	"alignd/pkg/log"
	"alignd/pkg/metrics"
)

// statusPollPeriod is the rate at which the broadcast loop samples the
// controller; clients only receive frames when the status changed.
const statusPollPeriod = 250 * time.Millisecond

// Config holds server settings.
type Config struct {
	// Addr is the HTTP listen address (e.g. ":7125").
	Addr string

	Controller *align.Controller

	// Registry backs GET /metrics; nil disables the endpoint.
	Registry *metrics.Registry

	Logger *log.Logger
}

// Server is the HTTP/WebSocket front end for one controller.
type Server struct {
	ctrl   *align.Controller
	reg    *metrics.Registry
	logger *log.Logger

	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running atomic.Bool
}

// New creates a server; Start begins listening.
func New(cfg Config) *Server {
	s := &Server{
		ctrl:      cfg.Controller,
		reg:       cfg.Registry,
		logger:    cfg.Logger,
		addr:      cfg.Addr,
		wsClients: make(map[int64]*wsClient),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Handler returns the route table. Split from Start so tests can mount
// it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /cancel", s.handleCancel)
	mux.HandleFunc("POST /move", s.handleMove)
	mux.HandleFunc("GET /alignments", s.handleAlignments)
	mux.HandleFunc("POST /alignments/{name}/save", s.handleSave)
	mux.HandleFunc("POST /alignments/{name}/recall", s.handleRecall)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start runs the HTTP server until Stop. It blocks.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.running.Store(true)
	s.logger.Info("control server listening on %s", s.addr)

	go s.statusBroadcastLoop()

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down and drops all WebSocket clients.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// statusReply is the body of GET /status and the WebSocket frames.
type statusReply struct {
	Status    align.Status       `json:"status"`
	Positions map[string]float64 `json:"positions"`
}

func (s *Server) currentStatus() statusReply {
	return statusReply{
		Status:    s.ctrl.Status(),
		Positions: s.ctrl.Positions(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.currentStatus())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.currentStatus())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Cancel(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.currentStatus())
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var target map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.MoveTo(target); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.currentStatus())
}

func (s *Server) handleAlignments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"alignments": s.ctrl.Store().Names()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.ctrl.SaveAlignment(name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"saved": name})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.ctrl.RecallAlignment(name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.currentStatus())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.reg == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.reg.Gather()))
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError maps controller error categories onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrAlreadyRunning):
		code = http.StatusConflict
	case errors.Is(err, errors.ErrUnknownAlignment):
		code = http.StatusNotFound
	case errors.IsValidation(err), errors.Is(err, errors.ErrConfig):
		code = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
