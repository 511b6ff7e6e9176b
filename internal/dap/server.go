package dap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/gdbserver-dap/internal/config"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// Server accepts DAP clients and runs one Session per connection
type Server struct {
	cfg     *config.Config
	backend Backend
	log     logr.Logger

	sessions *SessionManager
}

// NewServer creates a server whose sessions use backend
func NewServer(cfg *config.Config, backend Backend, log logr.Logger) *Server {
	return &Server{
		cfg:      cfg,
		backend:  backend,
		log:      log,
		sessions: NewSessionManager(),
	}
}

// Sessions returns the registry of live sessions
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// ServeStdio runs a single session over in/out and returns when the client
// disconnects
func (s *Server) ServeStdio(ctx context.Context, in io.ReadCloser, out io.WriteCloser) error {
	return s.serve(ctx, NewStdioTransport(in, out))
}

// ListenAndServe accepts TCP clients on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts clients on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.log.Info("listening for DAP clients", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.sessions.Close()
				return nil
			}
			s.log.Error(err, "connection failed")
			continue
		}
		s.log.Info("accepted connection", "remote", conn.RemoteAddr().String())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serve(ctx, NewConnTransport(conn)); err != nil {
				s.log.Error(err, "session ended with error", "remote", conn.RemoteAddr().String())
			}
		}()
	}
}

func (s *Server) serve(ctx context.Context, transport MessageTransport) error {
	session := NewSession(ctx, s.cfg, s.backend, transport, s.log.WithName("session"))
	s.sessions.add(session)
	defer s.sessions.remove(session.ID)

	stop := context.AfterFunc(ctx, func() {
		_ = session.Close()
	})
	defer stop()

	return session.Serve()
}

// SessionManager tracks the sessions of a server
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager creates an empty registry
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func (sm *SessionManager) add(session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[session.ID] = session
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return session, nil
}

// ListSessions summarizes all live sessions
func (sm *SessionManager) ListSessions() []types.SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	infos := make([]types.SessionInfo, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		infos = append(infos, session.Info())
	}
	return infos
}

// Close ends every session's client connection
func (sm *SessionManager) Close() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, session := range sm.sessions {
		_ = session.Close()
	}
}
