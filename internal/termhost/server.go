package termhost

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

// ServerConfig controls the host process.
type ServerConfig struct {
	Dir         string
	Shell       string
	Scrollback  int
	IdleTimeout time.Duration
}

// Server owns the PTY registry and serves it over a unix socket. The socket
// outlives any single UI process, which is what makes session recovery work:
// a reconnecting UI finds the same host and reattaches by key.
type Server struct {
	cfg      ServerConfig
	paths    Paths
	registry *Registry
	token    string
	log      pslog.Logger
	httpSrv  *http.Server
}

// NewServer builds a host server. The registry spawns real PTYs.
func NewServer(cfg ServerConfig, logger pslog.Logger) (*Server, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	paths := Paths{Dir: cfg.Dir}
	token, err := paths.LoadOrGenerateToken()
	if err != nil {
		return nil, fmt.Errorf("host token: %w", err)
	}
	spawn := func(ctx context.Context, key schema.TerminalKey, cols, rows int) (Backing, error) {
		return SpawnPTY(pslog.ContextWithLogger(ctx, logger), SpawnConfig{
			Shell:              cfg.Shell,
			ScrollbackMaxBytes: cfg.Scrollback,
		}, key, cols, rows)
	}
	return &Server{
		cfg:      cfg,
		paths:    paths,
		registry: NewRegistry(spawn, logger),
		token:    token,
		log:      logger,
	}, nil
}

// Registry exposes the session registry, mainly for in-process attachment.
func (s *Server) Registry() *Registry { return s.registry }

// Run listens on the host socket until the context is cancelled. It refuses
// to start when another host already owns the socket.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("host dir: %w", err)
	}
	if s.paths.DetectRunning() {
		return fmt.Errorf("host already running on %s", s.paths.Socket())
	}
	s.paths.CleanupStale()

	listener, err := net.Listen("unix", s.paths.Socket())
	if err != nil {
		return fmt.Errorf("host listen: %w", err)
	}
	if err := os.Chmod(s.paths.Socket(), 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("host socket mode: %w", err)
	}
	if err := s.paths.WritePidFile(); err != nil {
		listener.Close()
		return fmt.Errorf("host pid file: %w", err)
	}

	s.httpSrv = &http.Server{Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(listener)
	}()
	s.log.Info("host listening", "socket", s.paths.Socket())

	if s.cfg.IdleTimeout > 0 {
		go s.reapLoop(ctx)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdown()
			return err
		}
	}
	s.shutdown()
	return nil
}

func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.ReapIdle(s.cfg.IdleTimeout)
		}
	}
}

func (s *Server) shutdown() {
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	s.registry.CloseAll()
	s.paths.RemoveRuntimeFiles()
	s.log.Info("host stopped")
}

// Handler returns the host HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/attach", s.requireToken(s.handleAttach))
	mux.HandleFunc("GET /api/sessions", s.requireToken(s.handleSessions))
	mux.HandleFunc("POST /api/sessions/{id}/write", s.requireToken(s.handleWrite))
	mux.HandleFunc("POST /api/sessions/{id}/resize", s.requireToken(s.handleResize))
	mux.HandleFunc("POST /api/sessions/{id}/close", s.requireToken(s.handleClose))
	mux.HandleFunc("GET /api/sessions/{id}/scrollback", s.requireToken(s.handleScrollback))
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.requireToken(s.handleStream))
	return mux
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Key.Terminal == "" {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	result, err := s.registry.Attach(r.Context(), req.Key, req.Cols, req.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, attachResponse{
		Session:       result.Backing.ID(),
		IsNew:         result.IsNew,
		ScrollbackB64: base64.StdEncoding.EncodeToString([]byte(result.Scrollback)),
		WasRecovered:  result.WasRecovered,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: s.registry.Sessions()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Backing, bool) {
	backing, ok := s.registry.Lookup(schema.SessionID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, schema.ErrSessionNotFound)
		return nil, false
	}
	return backing, true
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	backing, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.DataB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := backing.Write(data); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	backing, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := backing.Resize(req.Cols, req.Rows); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := schema.SessionID(r.PathValue("id"))
	if err := s.registry.Close(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleScrollback(w http.ResponseWriter, r *http.Request) {
	backing, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, scrollbackResponse{
		ScrollbackB64: base64.StdEncoding.EncodeToString([]byte(backing.Scrollback())),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	backing, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, cancel := backing.Subscribe()
	defer cancel()

	s.log.Debug("host stream opened", "session", backing.ID())
	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("host stream closed", "session", backing.ID())
			return
		case out, open := <-ch:
			if !open {
				return
			}
			event := streamEvent{Exit: out.Exit}
			if len(out.Data) > 0 {
				event.DataB64 = base64.StdEncoding.EncodeToString(out.Data)
			}
			if err := writeSSEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrSessionNotLive), errors.Is(err, schema.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeSSEvent(w http.ResponseWriter, event streamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
