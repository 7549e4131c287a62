package server

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

	"github.com/omnisign/sessionguard/internal/platform/timeouts"
	"github.com/omnisign/sessionguard/internal/services/guard/biometric"
	"github.com/omnisign/sessionguard/internal/services/guard/httpapi"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
	"github.com/omnisign/sessionguard/internal/services/guard/storage/memory"
	guardsqlite "github.com/omnisign/sessionguard/internal/services/guard/storage/sqlite"
	"github.com/robfig/cron/v3"
)

// Server hosts the guard service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	closeStore func() error
	relay      *biometric.Relay
	machine    *session.Machine
	sweeper    *cron.Cron
}

// New creates a configured guard server listening on cfg.HTTPAddr.
func New(cfg Config) (*Server, error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	keys := storage.NewKeyspace(store)

	relay := biometric.NewRelay()
	bridge := biometric.NewBridge(biometric.LoadConfigFromEnv(), keys, relay)
	directives := httpapi.NewDirectives()
	machine := session.NewMachine(keys,
		session.WithConfig(cfg.sessionConfig()),
		session.WithBiometrics(bridge),
		session.WithPrefiller(directives),
		session.WithNotifier(directives),
		session.WithObserver(directives),
	)

	sweeper, err := newSweeper(cfg.CeremonySweepSchedule, relay)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Session:        machine,
		Ceremonies:     relay,
		Directives:     directives,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		closeStore: closeStore,
		relay:      relay,
		machine:    machine,
		sweeper:    sweeper,
	}, nil
}

// Addr returns the listener address for the guard server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a guard server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the guard server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.shutdownSession()

	s.sweeper.Start()
	log.Printf("guard HTTP server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		// Biometric unlock requests hold their connection until the ceremony
		// resolves, so fail parked ceremonies before draining.
		s.relay.Sweep(time.Now().Add(timeouts.BestEffortTask))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("guard HTTP shutdown: %v", err)
			_ = s.httpServer.Close()
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// shutdownSession stops the sweeper, lets onboarding follow-ups finish, and
// closes the store.
func (s *Server) shutdownSession() {
	<-s.sweeper.Stop().Done()
	s.relay.Sweep(time.Now().Add(timeouts.BestEffortTask))
	s.machine.Wait()
	if err := s.closeStore(); err != nil {
		log.Printf("close guard store: %v", err)
	}
}

func newSweeper(schedule string, relay *biometric.Relay) (*cron.Cron, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = "@every 1m"
	}
	sweeper := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	_, err := sweeper.AddFunc(schedule, func() {
		if expired := relay.Sweep(time.Now()); expired > 0 {
			log.Printf("expired %d biometric ceremonies", expired)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule ceremony sweep %q: %w", schedule, err)
	}
	return sweeper, nil
}

func openStore(cfg Config) (storage.Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case StorageMemory:
		return memory.New(cfg.namespace()), func() error { return nil }, nil
	case "", StorageSQLite:
		store, err := openSQLiteStore(cfg.DBPath, cfg.namespace())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func openSQLiteStore(path, namespace string) (*guardsqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "guard.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := guardsqlite.Open(path, namespace)
	if err != nil {
		return nil, fmt.Errorf("open guard sqlite store: %w", err)
	}
	return store, nil
}
