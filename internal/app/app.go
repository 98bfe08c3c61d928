// Package app assembles the latchkey service: storage, ceremony engine,
// session service, mail dispatcher, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/latchkey/internal/api/web"
	"github.com/louisbranch/latchkey/internal/ceremony"
	"github.com/louisbranch/latchkey/internal/mail"
	"github.com/louisbranch/latchkey/internal/passkey"
	"github.com/louisbranch/latchkey/internal/storage/sqlite"
	"github.com/louisbranch/latchkey/internal/token"
)

// sweepInterval paces background housekeeping. The sweeps are advisory;
// expiry is always enforced at read time.
const sweepInterval = 5 * time.Minute

// Server hosts the latchkey HTTP service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	engine     *ceremony.Engine
	dispatcher *mail.Dispatcher
}

// New creates a configured server listening on addr.
func New(addr, dbPath string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	store, err := openStore(dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	engine, err := ceremony.New(passkey.LoadConfigFromEnv(), store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build ceremony engine: %w", err)
	}
	tokenConfig, err := token.LoadConfigFromEnv()
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("load session config: %w", err)
	}
	sessions, err := token.NewService(tokenConfig, store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build session service: %w", err)
	}
	dispatcher := mail.NewDispatcher(store, nil)

	handler := web.NewHandler(engine, sessions, store)
	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: handler.Router()},
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, addr, dbPath string) error {
	server, err := New(addr, dbPath)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	go s.housekeeping(serverCtx)

	log.Printf("latchkey server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// housekeeping sweeps expired rows and drains the mail outbox until the
// context ends.
func (s *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(ctx, now.UTC())
		}
	}
}

func (s *Server) sweep(ctx context.Context, now time.Time) {
	if err := s.engine.ExpireStale(ctx, now); err != nil {
		log.Printf("sweep ceremony state: %v", err)
	}
	if err := s.store.DeleteExpiredWebSessions(ctx, now); err != nil {
		log.Printf("sweep web sessions: %v", err)
	}
	if sent, err := s.dispatcher.DispatchPending(ctx); err != nil {
		log.Printf("dispatch outbox: %v", err)
	} else if sent > 0 {
		log.Printf("dispatched %d outbox emails", sent)
	}
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "latchkey.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
