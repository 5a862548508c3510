// Package api serves the local HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/verte-zerg/ember/internal/config"
	"github.com/verte-zerg/ember/internal/live"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/winctl"
)

const (
	// DefaultAddr keeps the API on the loopback interface.
	DefaultAddr = "localhost:3000"
	// DefaultAllowedOrigin is the dashboard dev server origin.
	DefaultAllowedOrigin = "http://localhost:5173"
	// DefaultStreamInterval is the SSE poll cadence.
	DefaultStreamInterval = 2 * time.Second

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// StatsReader reads the live counters. Each stream and the stats endpoint
// own a separate instance.
type StatsReader interface {
	Attach() error
	IsAttached() bool
	IsAlive() bool
	Reset()
	DeathCount() (uint32, error)
	PlayTime() (uint32, error)
}

// Store is the read side of persistence. *store.Store implements it.
type Store interface {
	GetPlayerStats(ctx context.Context) (model.PlayerStats, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.Session, error)
	ListDeaths(ctx context.Context, characterID int64) ([]model.Death, error)
	DeathsByZone(ctx context.Context, characterID int64) ([]model.ZoneDeaths, error)
	ListCharacters(ctx context.Context) ([]model.Character, error)
	GetCharacter(ctx context.Context, id int64) (model.Character, error)
	GetCharacterStats(ctx context.Context, characterID int64) (model.CharacterStats, error)
}

// Waker is notified after settings change.
type Waker interface {
	Wake()
}

// Config wires the server's collaborators.
type Config struct {
	Addr           string
	AllowedOrigin  string
	Version        string
	Store          Store
	Settings       *config.SettingsStore
	Live           *live.State
	NewReader      func() StatsReader
	Borderless     winctl.Toggler
	AutoStart      winctl.Toggler
	Presence       Waker
	StreamInterval time.Duration
	Logger         *log.Logger
	Now            func() time.Time
}

// Server is the HTTP API.
type Server struct {
	cfg        Config
	startedAt  time.Time
	httpServer *http.Server

	// streams is cancelled when shutdown begins. Request contexts are not.
	streams     context.Context
	stopStreams context.CancelFunc

	statsMu sync.Mutex
	stats   StatsReader
}

// NewServer validates cfg and builds the server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("settings are required")
	}
	if cfg.NewReader == nil {
		return nil, errors.New("reader factory is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = DefaultAllowedOrigin
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = DefaultStreamInterval
	}
	if cfg.Live == nil {
		cfg.Live = &live.State{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:       cfg,
		startedAt: cfg.Now(),
		stats:     cfg.NewReader(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.httpServer.RegisterOnShutdown(s.stopStreams)
	return s, nil
}

// Handler returns the routed handler with CORS and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handlePatchSettings)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/stream", s.handleStream)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/deaths", s.handleDeaths)
	mux.HandleFunc("GET /api/deaths/zones", s.handleDeathsByZone)
	mux.HandleFunc("GET /api/characters", s.handleCharacters)
	mux.HandleFunc("GET /api/characters/{id}", s.handleCharacter)
	mux.HandleFunc("GET /api/characters/{id}/stats", s.handleCharacterStats)
	return s.recoverPanics(s.cors(mux))
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. Open streams are ended
// before the server waits for idle connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	s.cfg.Logger.Printf("api listening addr=%s", ln.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		s.resetStatsReader()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		s.stopStreams()
		s.resetStatsReader()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) resetStatsReader() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats.IsAttached() {
		s.stats.Reset()
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && origin == s.cfg.AllowedOrigin
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				s.cfg.Logger.Printf(
					"panic recovered method=%s path=%s panic=%v stack=%s",
					r.Method,
					r.URL.Path,
					recovered,
					strings.TrimSpace(string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
