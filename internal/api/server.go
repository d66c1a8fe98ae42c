// Package api provides the HTTP API for the ascension planner.
// GET endpoints are public. Creating games requires a bearer token that maps
// to an owner; ascension state is keyed by island and open to any client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/talgya/ascension/internal/ascension"
	"github.com/talgya/ascension/internal/persistence"
)

// Version is reported by the status endpoint.
const Version = "1.0.0"

const maxBodyBytes = 16 << 10

// Store is the persistence the API needs.
type Store interface {
	LoadAscension(ctx context.Context, island string) (ascension.State, bool, error)
	SaveAscension(ctx context.Context, island string, st ascension.State) error
	ListGames(ctx context.Context) ([]persistence.Game, error)
	CreateGame(ctx context.Context, g persistence.Game, owner string) (persistence.Game, error)
}

// Server serves the ascension planner over HTTP.
type Server struct {
	Settings ascension.Settings
	DB       Store
	Port     int
	Owners   map[string]string // Bearer token → owner id. Empty = game creation disabled.
	Origins  []string          // Extra CORS origins besides the localhost dev servers.

	// Write requests allowed per client per minute. Zero means 60.
	WritesPerMinute int

	limiter  *RateLimiter
	upgrader websocket.Upgrader
	origins  map[string]bool
	srv      *http.Server
}

// Handler builds the routing tree. Start calls it; tests use it directly.
func (s *Server) Handler() http.Handler {
	writes := s.WritesPerMinute
	if writes == 0 {
		writes = 60
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(writes, time.Minute)
	}
	s.origins = allowedOrigins(s.Origins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r) },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/settings", s.handleSettings)
	mux.HandleFunc("/api/v1/ascension/", RateLimitMiddleware(s.limiter, s.handleAscension))
	mux.HandleFunc("/api/v1/games", RateLimitMiddleware(s.limiter, s.ownerOnly(s.handleGames)))

	gz := gzhttp.GzipHandler(mux)
	root := http.NewServeMux()
	root.Handle("/", gz)
	// Websocket upgrades on .../{island}/live bypass the gzip writer.
	root.HandleFunc("/api/v1/ascension/", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := islandFromPath(r.URL.Path, ascensionPrefix, liveSuffix); ok {
			s.handleLive(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})

	return s.corsMiddleware(root)
}

const (
	ascensionPrefix = "/api/v1/ascension/"
	liveSuffix      = "/live"
)

// islandFromPath extracts the island id between prefix and suffix.
// Ids are single path segments.
func islandFromPath(path, prefix, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", false
	}
	island, ok := strings.CutSuffix(rest, suffix)
	if !ok || island == "" || strings.Contains(island, "/") {
		return "", false
	}
	return island, true
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "owners", len(s.Owners), "origins", len(s.origins))

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// allowedOrigins merges the configured origins with the localhost dev servers.
func allowedOrigins(extra []string) map[string]bool {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = true
		}
	}
	return allowed
}

// originAllowed accepts requests without an Origin header (non-browser
// clients) and browser requests from a known origin.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.origins[origin]
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ownerFromRequest resolves the bearer token to an owner id.
func (s *Server) ownerFromRequest(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	owner, ok := s.Owners[token]
	return owner, ok
}

// ownerOnly requires a known bearer token on POST requests.
// GET requests pass through.
func (s *Server) ownerOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if len(s.Owners) == 0 {
				writeError(w, http.StatusForbidden, "game creation disabled (no ASCENSION_OWNER_TOKENS set)")
				return
			}
			if _, ok := s.ownerFromRequest(r); !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tiers := make(map[ascension.Chain]int, len(ascension.Chains))
	for _, c := range ascension.Chains {
		tiers[c] = len(s.Settings.ChainKeys(c))
	}
	writeJSON(w, map[string]any{
		"name":    "Ascension Pyramid",
		"version": Version,
		"tiers":   tiers,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, s.Settings)
}

type ascensionResponse struct {
	Island string                       `json:"island"`
	State  ascension.State              `json:"state"`
	Order  string                       `json:"order"`
	Levels map[ascension.Chain][]string `json:"levels"`
	ascension.Pyramid
}

// handleAscension serves GET (load or fresh state) and POST (replace state)
// for /api/v1/ascension/{island}.
func (s *Server) handleAscension(w http.ResponseWriter, r *http.Request) {
	island, ok := islandFromPath(r.URL.Path, ascensionPrefix, "")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown island path")
		return
	}

	order := r.URL.Query().Get("order")
	if order == "" {
		order = "asc"
	}
	if order != "asc" && order != "desc" {
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	switch r.Method {
	case http.MethodGet:
		st, err := s.loadState(r.Context(), island)
		if err != nil {
			slog.Error("load ascension failed", "island", island, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp, err := s.respond(island, st, order)
		if err != nil {
			slog.Error("compute ascension failed", "island", island, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, resp)

	case http.MethodPost:
		var st ascension.State
		if err := decodeBody(r, &st); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := s.apply(r.Context(), island, st, order)
		if err != nil {
			var inErr *ascension.InputError
			if errors.As(err, &inErr) {
				writeError(w, http.StatusBadRequest, inErr.Error())
				return
			}
			slog.Error("apply ascension failed", "island", island, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, resp)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// loadState returns the stored state, or a fresh one on first view.
func (s *Server) loadState(ctx context.Context, island string) (ascension.State, error) {
	st, ok, err := s.DB.LoadAscension(ctx, island)
	if err != nil {
		return ascension.State{}, err
	}
	if !ok {
		return ascension.NewState(), nil
	}
	return st, nil
}

// apply validates and stores a submitted state, then recomputes both chains.
func (s *Server) apply(ctx context.Context, island string, st ascension.State, order string) (ascensionResponse, error) {
	if err := st.Validate(s.Settings); err != nil {
		return ascensionResponse{}, err
	}
	if err := s.DB.SaveAscension(ctx, island, st); err != nil {
		return ascensionResponse{}, err
	}
	return s.respond(island, st, order)
}

func (s *Server) respond(island string, st ascension.State, order string) (ascensionResponse, error) {
	p, err := ascension.ComputePyramid(s.Settings, st, ascension.PopRate)
	if err != nil {
		return ascensionResponse{}, err
	}
	if order == "desc" {
		p = p.Reversed()
	}
	return ascensionResponse{
		Island:  island,
		State:   st,
		Order:   order,
		Levels:  levelHeaders(p, order),
		Pyramid: p,
	}, nil
}

func levelHeaders(p ascension.Pyramid, order string) map[ascension.Chain][]string {
	headers := map[ascension.Chain][]string{
		ascension.Occident: ascension.LevelHeaders(len(p.Occident)),
		ascension.Orient:   ascension.LevelHeaders(len(p.Orient)),
	}
	if order == "asc" {
		for _, h := range headers {
			for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
				h[i], h[j] = h[j], h[i]
			}
		}
	}
	return headers
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		games, err := s.DB.ListGames(r.Context())
		if err != nil {
			slog.Error("list games failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, map[string]any{"results": games})

	case http.MethodPost:
		owner, _ := s.ownerFromRequest(r)
		var g persistence.Game
		if err := decodeBody(r, &g); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.Name = strings.TrimSpace(g.Name)
		if g.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		created, err := s.DB.CreateGame(r.Context(), g, owner)
		if err != nil {
			slog.Error("create game failed", "owner", owner, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(created); err != nil {
			slog.Debug("write response failed", "error", err)
		}

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Debug("write error response failed", "status", status, "error", err)
	}
}

// ParseOwnerTokens parses "token=owner,token2=owner2" into a lookup map.
func ParseOwnerTokens(raw string) (map[string]string, error) {
	owners := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, "=")
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("owner token entry %q: want token=owner", pair)
		}
		owners[token] = owner
	}
	return owners, nil
}
