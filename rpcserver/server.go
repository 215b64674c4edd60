// Package rpcserver dispatches JSON-RPC calls from the scripting client to
// the registered facades.
//
// A facade-level failure is not an RPC error: the facades collapse platform
// failures to sentinel results (null/false/-1) that the client already
// understands. The error member of a response is reserved for transport
// problems - unknown method, malformed params.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Handler serves one RPC method. A returned error means the call itself was
// malformed; platform failures are reported inside the result value.
type Handler func(p Params) (any, error)

// Receiver is one facade: a named bundle of RPC methods with a shutdown
// hook that releases everything the facade still holds.
type Receiver interface {
	Name() string
	Methods() map[string]Handler
	Shutdown()
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  *string         `json:"error"`
}

type Server struct {
	addr      string
	mux       *http.ServeMux
	mu        sync.Mutex
	methods   map[string]Handler
	receivers []Receiver
}

func New(addr string) *Server {
	s := &Server{
		addr:    addr,
		mux:     http.NewServeMux(),
		methods: make(map[string]Handler),
	}
	s.mux.HandleFunc("POST /rpc", s.handleRPC)
	return s
}

// Register adds every method of a facade to the dispatch table. Duplicate
// method names are a programming error and fail loudly.
func (s *Server) Register(r Receiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, h := range r.Methods() {
		if _, exists := s.methods[name]; exists {
			return fmt.Errorf("duplicate RPC method %q from facade %s", name, r.Name())
		}
		s.methods[name] = h
	}
	s.receivers = append(s.receivers, r)
	slog.Info("registered facade", "facade", r.Name(), "methods", len(r.Methods()))
	return nil
}

// Handle mounts an extra HTTP handler, e.g. the websocket event endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) lookup(method string) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.methods[method]
	return h, ok
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	resp := response{ID: req.ID}
	handler, ok := s.lookup(req.Method)
	if !ok {
		slog.Warn("unknown RPC method", "method", req.Method)
		msg := fmt.Sprintf("unknown method %q", req.Method)
		resp.Error = &msg
	} else {
		result, err := handler(Params(req.Params))
		if err != nil {
			slog.Warn("RPC call failed to decode", "method", req.Method, "error", err)
			msg := err.Error()
			resp.Error = &msg
		} else {
			resp.Result = result
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		slog.Error("failed to write RPC response", "method", req.Method, "error", err)
	}
}

// Start runs the HTTP server until ctx is done, then shuts it down
// gracefully and closes every registered facade.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("RPC server listening", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down RPC server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	s.mu.Lock()
	receivers := append([]Receiver(nil), s.receivers...)
	s.mu.Unlock()
	for _, r := range receivers {
		slog.Debug("shutting down facade", "facade", r.Name())
		r.Shutdown()
	}
	return nil
}
