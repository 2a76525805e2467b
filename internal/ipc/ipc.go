package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dialTimeout = 2 * time.Second

// ErrDaemonRunning is returned when another daemon already owns the socket
var ErrDaemonRunning = errors.New("daemon already listening on socket")

// HandlerFunc answers a single request
type HandlerFunc func(ctx context.Context, req *Request) *Response

// StreamFunc writes a sequence of values until ctx is done or send fails.
// ctx is cancelled when the client disconnects.
type StreamFunc func(ctx context.Context, req *Request, send func(v any) error) error

// Server dispatches requests arriving on a Unix socket
type Server struct {
	socketPath string
	logger     *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	streams  map[string]StreamFunc

	wg sync.WaitGroup
}

// NewServer creates a server for socketPath
func NewServer(socketPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		logger:     logger.With(zap.String("component", "ipc")),
		handlers:   make(map[string]HandlerFunc),
		streams:    make(map[string]StreamFunc),
	}
}

// Handle registers a request/response command
func (s *Server) Handle(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
}

// HandleStream registers a streaming command
func (s *Server) HandleStream(command string, fn StreamFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[command] = fn
}

// ListenAndServe accepts connections until ctx is cancelled. Connections in
// flight are cancelled and waited for before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds the socket, removing a stale one left by a crashed daemon
func (s *Server) Listen() (net.Listener, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("IPC server not implemented for Windows yet")
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	if conn, err := net.DialTimeout("unix", s.socketPath, dialTimeout); err == nil {
		conn.Close()
		return nil, ErrDaemonRunning
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return ln, nil
}

// Serve handles connections from ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer os.Remove(s.socketPath)

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Debug("Accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	var req Request
	if err := dec.Decode(&req); err != nil {
		enc.Encode(Errorf("invalid request: %v", err))
		return
	}

	s.mu.RLock()
	handler, isHandler := s.handlers[req.Command]
	stream, isStream := s.streams[req.Command]
	s.mu.RUnlock()

	log := s.logger.With(zap.String("command", req.Command))

	switch {
	case isHandler:
		log.Debug("Handling request")
		resp := handler(ctx, &req)
		if resp == nil {
			resp = OK(nil)
		}
		if err := enc.Encode(resp); err != nil {
			log.Debug("Failed to write response", zap.Error(err))
		}
	case isStream:
		s.serveStream(ctx, conn, enc, &req, stream, log)
	default:
		enc.Encode(Errorf("unknown command %q", req.Command))
	}
}

func (s *Server) serveStream(ctx context.Context, conn net.Conn, enc *json.Encoder, req *Request, stream StreamFunc, log *zap.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the client sends nothing after the request; EOF means it left
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	if err := enc.Encode(OK(nil)); err != nil {
		return
	}
	log.Debug("Stream opened")

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return enc.Encode(v)
	}
	if err := stream(ctx, req, send); err != nil && ctx.Err() == nil {
		log.Warn("Stream ended with error", zap.Error(err))
	}
	log.Debug("Stream closed")
}

// SendRequest connects to the daemon, sends a request, and returns the response.
func SendRequest(socketPath string, req *Request) (*Response, error) {
	conn, err := dial(socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Stream sends a streaming request and calls fn with each value until ctx
// is cancelled, the daemon closes the stream, or fn returns an error.
func Stream(ctx context.Context, socketPath string, req *Request, fn func(json.RawMessage) error) error {
	conn, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	dec := json.NewDecoder(bufio.NewReader(conn))
	var first Response
	if err := dec.Decode(&first); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := first.Err(); err != nil {
		return err
	}

	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stream interrupted: %w", err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}

// Available reports whether a daemon answers on socketPath
func Available(socketPath string) bool {
	conn, err := dial(socketPath)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dial(socketPath string) (net.Conn, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("IPC not implemented for Windows yet")
	}
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}
