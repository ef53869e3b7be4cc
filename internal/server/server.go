// Package server exposes the workflow engine over HTTP and WebSocket for the
// WebXR front end: command submission, scene reads, session stats and export,
// pose tracking, and a live change feed.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"scenecraft/internal/ledger"
	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

// Server is the HTTP/WS surface over the engine.
type Server struct {
	addr   string
	engine *workflow.Engine
	store  *scene.Store
	ledger *ledger.Ledger
	hub    *hub

	httpSrv *http.Server
}

// New builds the server and its routes.
func New(addr string, engine *workflow.Engine, store *scene.Store, lgr *ledger.Ledger) *Server {
	s := &Server{
		addr:   addr,
		engine: engine,
		store:  store,
		ledger: lgr,
		hub:    newHub(store),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Post("/command", s.handleCommand)
	r.Get("/scene", s.handleScene)
	r.Post("/pose", s.handlePose)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessions)
		r.Get("/{sessionID}/stats", s.handleSessionStats)
		r.Get("/{sessionID}/history", s.handleSessionHistory)
		r.Get("/{sessionID}/export", s.handleSessionExport)
		r.Delete("/{sessionID}", s.handleClearSession)
	})
	r.Get("/export", s.handleExport)
	r.Get("/ws", s.hub.handleWS)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// BroadcastSnapshot pushes the full scene to all connected observers. The
// watcher calls this after an external reload, when no per-object events
// were emitted.
func (s *Server) BroadcastSnapshot() {
	s.hub.broadcastSnapshot()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Get(logging.CategoryServer).Info("listening on %s", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.hub.run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cors allows the WebXR front end (served from a different origin, often a
// headset browser) to talk to the API without a proxy.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.APIDebug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Error("failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
