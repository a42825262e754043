// Package server exposes the daemon's HTTP surface on the loopback
// interface. It is a thin translation layer over the primary ports: handlers
// decode JSON and map error kinds to status codes. No business rules live
// here.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/core/classify"
	"github.com/example/loom/internal/ports/primary"
	"github.com/example/loom/internal/version"
)

// PortLockFile is written to the data directory so short-lived processes
// (hooks, the stdio bridge) can find the running daemon.
const PortLockFile = "port.lock"

// Server serves the daemon API over loopback HTTP.
type Server struct {
	memory    primary.MemoryService
	retriever primary.Retriever
	learning  primary.LearningService
	analytics primary.AnalyticsService
	specs     primary.SpecCoordinator
	worktrees primary.WorktreeManager
	cfg       *config.Config
	dataDir   string
	log       zerolog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New assembles a server over the given services.
func New(
	memory primary.MemoryService,
	retriever primary.Retriever,
	learning primary.LearningService,
	analytics primary.AnalyticsService,
	specs primary.SpecCoordinator,
	worktrees primary.WorktreeManager,
	cfg *config.Config,
	dataDir string,
	log zerolog.Logger,
) *Server {
	return &Server{
		memory:    memory,
		retriever: retriever,
		learning:  learning,
		analytics: analytics,
		specs:     specs,
		worktrees: worktrees,
		cfg:       cfg,
		dataDir:   dataDir,
		log:       log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /memory/save", s.handleMemorySave)
	mux.HandleFunc("POST /memory/search", s.handleMemorySearch)
	mux.HandleFunc("POST /memory/timeline", s.handleMemoryTimeline)
	mux.HandleFunc("POST /memory/observations", s.handleMemoryObservations)
	mux.HandleFunc("GET /memory/stats", s.handleMemoryStats)
	mux.HandleFunc("POST /sessions/init", s.handleSessionInit)
	mux.HandleFunc("GET /sessions", s.handleSessionList)

	mux.HandleFunc("GET /retrieval/status", s.handleRetrievalStatus)
	mux.HandleFunc("POST /retrieval/search", s.handleRetrievalSearch)
	mux.HandleFunc("POST /retrieval/reindex", s.handleRetrievalReindex)

	mux.HandleFunc("POST /learning/analyze", s.handleLearningAnalyze)
	mux.HandleFunc("POST /learning/proposals", s.handleLearningProposals)
	mux.HandleFunc("POST /learning/decide", s.handleLearningDecide)
	mux.HandleFunc("GET /learning/stats", s.handleLearningStats)
	mux.HandleFunc("GET /learning/config", s.handleLearningConfig)

	mux.HandleFunc("POST /analytics/failures", s.handleAnalyticsFailure)
	mux.HandleFunc("GET /analytics/summary", s.handleAnalyticsSummary)
	mux.HandleFunc("GET /analytics/trends", s.handleAnalyticsTrends)
	mux.HandleFunc("GET /analytics/hotspots", s.handleAnalyticsHotspots)
	mux.HandleFunc("GET /analytics/effectiveness", s.handleAnalyticsEffectiveness)
	mux.HandleFunc("GET /analytics/systematic", s.handleAnalyticsSystematic)

	mux.HandleFunc("GET /spec/state", s.handleSpecList)
	mux.HandleFunc("GET /spec/state/{slug}", s.handleSpecGet)
	mux.HandleFunc("GET /spec/busy", s.handleSpecBusy)
	mux.HandleFunc("POST /spec/start", s.handleSpecStart)
	mux.HandleFunc("POST /spec/assess", s.handleSpecAssess)
	mux.HandleFunc("POST /spec/{slug}/approve_plan", s.handleSpecApprovePlan)
	mux.HandleFunc("POST /spec/{slug}/start_task", s.handleSpecStartTask)
	mux.HandleFunc("POST /spec/{slug}/complete_task", s.handleSpecCompleteTask)
	mux.HandleFunc("POST /spec/{slug}/start_verify", s.handleSpecStartVerify)
	mux.HandleFunc("POST /spec/{slug}/verdict", s.handleSpecVerdict)
	mux.HandleFunc("POST /spec/{slug}/resolve_verify", s.handleSpecResolveVerify)
	mux.HandleFunc("POST /spec/{slug}/complete", s.handleSpecComplete)
	mux.HandleFunc("POST /spec/{slug}/abort", s.handleSpecAbort)
	mux.HandleFunc("GET /spec/{slug}/worktree", s.handleSpecWorktree)

	return mux
}

// Start binds the loopback listener, writes port.lock, and serves until
// Shutdown. Port 0 picks an ephemeral port.
func (s *Server) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind loopback listener: %w", err)
	}
	s.listener = listener

	if err := s.writePortLock(); err != nil {
		listener.Close()
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", listener.Addr().String()).Msg("daemon listening")

	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and removes port.lock.
func (s *Server) Shutdown(ctx context.Context) error {
	defer os.Remove(filepath.Join(s.dataDir, PortLockFile))
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (s *Server) writePortLock() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(s.dataDir, PortLockFile)
	data := strconv.Itoa(s.Port()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write port lock: %w", err)
	}
	return nil
}

// ReadPortLock resolves the running daemon's base URL from port.lock.
func ReadPortLock(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, PortLockFile))
	if err != nil {
		return "", fmt.Errorf("daemon not running: %w", err)
	}
	port, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return "", fmt.Errorf("malformed port lock: %w", err)
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port), nil
}

func trimNewline(data []byte) []byte {
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	return data
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleSpecAssess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpecText      string   `json:"spec_text"`
		AffectedFiles []string `json:"affected_files"`
	}
	if !decode(w, r, &req) {
		return
	}
	// Advisory classification; mutates nothing.
	complexity := classify.AssessComplexity(req.SpecText, req.AffectedFiles)
	writeJSON(w, http.StatusOK, map[string]string{"complexity": string(complexity)})
}
