package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"metadata-cleaner/internal/batch"
	"metadata-cleaner/internal/config"
	"metadata-cleaner/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	processor  *batch.Processor
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	lastStats      *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ProcessRequest is the batch invocation payload.
type ProcessRequest struct {
	FilePaths []string `json:"file_paths"`
	OutputDir string   `json:"output_dir,omitempty"`
	Overwrite bool     `json:"overwrite"`
}

// ProcessResponse carries either a batch-level error or the ordered per-file outcomes.
type ProcessResponse struct {
	OK         bool                 `json:"ok"`
	Error      string               `json:"error,omitempty"`
	Results    []batch.Outcome      `json:"results,omitempty"`
	Statistics *statistics.Snapshot `json:"statistics,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, processor *batch.Processor) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		processor: processor,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the UI is served from elsewhere
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/process", s.handleProcess).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// Progress channel
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// Batches answer only when every file is done.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	s.operationMutex.RUnlock()

	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":   running,
			"backend":   s.cfg.Stripper.Backend,
			"overwrite": s.cfg.Overwrite,
		},
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ProcessResponse{Error: "Invalid request body"})
		return
	}

	if len(req.FilePaths) == 0 {
		s.writeJSON(w, http.StatusBadRequest, ProcessResponse{Error: batch.ErrNoFiles.Error()})
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeJSON(w, http.StatusConflict, ProcessResponse{Error: "Operation already in progress"})
		return
	}
	s.isRunning = true
	s.operationMutex.Unlock()

	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.operationMutex.Unlock()
	}()

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.cfg.OutputDirectory
	}
	opts := batch.Options{OutputDir: outputDir, Overwrite: req.Overwrite}

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"total":      len(req.FilePaths),
		"output_dir": opts.OutputDir,
		"overwrite":  opts.Overwrite,
	})

	result, err := s.processor.Run(r.Context(), req.FilePaths, opts, func(p batch.Progress) {
		s.broadcastWSMessage("progress", p)
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, batch.ErrNoFiles) {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, ProcessResponse{Error: err.Error()})
		return
	}

	s.operationMutex.Lock()
	s.lastStats = result.Stats
	s.operationMutex.Unlock()

	snap := result.Stats.Snapshot()
	s.broadcastWSMessage("batch_completed", snap)

	s.writeJSON(w, http.StatusOK, ProcessResponse{
		OK:         true,
		Results:    result.Outcomes(),
		Statistics: &snap,
	})
}

// handleListDirectories lets a client pick an output directory. An empty
// selection on the client side simply means "no override".
func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	if hasParentRef(path) {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}
	path = filepath.Clean(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    directories,
	})
}

// hasParentRef reports whether any element of path is "..".
func hasParentRef(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.lastStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, http.StatusOK, APIResponse{Success: true})
		return
	}

	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  stats.GetSummary(),
			"errors":   stats.GetErrorSummary(),
			"counters": stats.Snapshot(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcastWSMessage delivers a message to every connected client. Delivery is
// fire-and-forget: a client that fails a write is dropped.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	msgBytes, err := json.Marshal(WSMessage{Type: messageType, Data: data})
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}
