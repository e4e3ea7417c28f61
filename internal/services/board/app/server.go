// Package server hosts the board synchronization engine and its WebSocket
// transport boundary.
//
// The engine itself is transport-agnostic: the Gateway validates and
// persists mutations, the Registry owns session aggregates, and the Router
// fans snapshots out to observers. The HTTP/WebSocket surface in this
// package is a thin adapter over those pieces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/opensetlist/setboard/internal/services/board/catalog"
	"github.com/opensetlist/setboard/internal/services/board/storage"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config defines the inputs for the board transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the board HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           storage.Store
}

// NewServer builds the engine and its transport around the given backend.
func NewServer(config Config, store storage.Store, cat *catalog.Catalog) (*Server, error) {
	if store == nil {
		return nil, errors.New("storage backend is required")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}

	readHeaderTimeout := config.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = defaultReadHeaderTimeout
	}
	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	registry := NewRegistry(store)
	router := NewRouter()
	gateway := NewGateway(registry, cat, router)

	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           NewHandler(gateway, router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return &Server{
		httpAddr:        config.HTTPAddr,
		shutdownTimeout: shutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a board server until the context ends.
func Run(ctx context.Context, config Config, store storage.Store, cat *catalog.Catalog) error {
	server, err := NewServer(config, store, cat)
	if err != nil {
		return fmt.Errorf("init board server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve board: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("board server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("board server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("board: close storage backend: %v", err)
		}
	}
}

// NewHandler creates the board HTTP routes around an assembled engine.
func NewHandler(gateway *Gateway, router *Router) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/songs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		payload := struct {
			Songs []string `json:"songs"`
		}{Songs: gateway.ListSongs()}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("board: encode songs response: %v", err)
		}
	})

	mux.Handle("/ws", newWSHandler(gateway, router))

	return mux
}
