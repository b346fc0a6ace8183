package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/metrics"
	"go.uber.org/zap"
)

const (
	// maxRequestSize is the most a single request read will accept
	maxRequestSize     = 1024
	defaultReadTimeout = 30 * time.Second
)

// Submitter accepts parsed requests for serialized execution
type Submitter interface {
	Submit(ctx context.Context, req domain.DaemonRequest) error
}

// Server accepts one request per TCP connection and answers with a single
// acknowledgment line once the request has completed.
type Server struct {
	logger      *zap.Logger
	addr        string
	worker      Submitter
	readTimeout time.Duration

	listener net.Listener
	wg       sync.WaitGroup
	closing  atomic.Bool
	cancel   context.CancelFunc
}

// NewServer creates a server that will listen on addr
func NewServer(logger *zap.Logger, addr string, worker Submitter) *Server {
	return &Server{
		logger:      logger,
		addr:        addr,
		worker:      worker,
		readTimeout: defaultReadTimeout,
	}
}

// Start binds the listener and begins accepting connections
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	connCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("Daemon listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(connCtx)
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for in-flight connections until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil || !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("Stopping daemon listener")
	err := s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle serves a single connection: one read, one request, one reply
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	buf := make([]byte, maxRequestSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		s.logger.Debug("Connection closed before a request", zap.String("remote", remote), zap.Error(err))
		return
	}

	line, _, _ := strings.Cut(string(buf[:n]), "\n")
	req, err := ParseRequest(line)
	switch {
	case errors.Is(err, ErrEmptyRequest):
		s.logger.Debug("Empty request", zap.String("remote", remote))
		return
	case err != nil:
		s.logger.Warn("Unknown command", zap.String("remote", remote), zap.String("request", line))
		metrics.DaemonRequests.WithLabelValues("unknown", metrics.ResultUnknown).Inc()
		s.reply(conn, ResponseUnknownCommand)
		return
	}

	s.logger.Info("Request received",
		zap.String("remote", remote),
		zap.String("verb", string(req.Verb)),
		zap.String("argument", req.Argument))

	err = s.worker.Submit(ctx, req)
	if errors.Is(err, context.Canceled) && s.closing.Load() {
		err = ErrShuttingDown
	}
	s.reply(conn, FormatResponse(err))
}

func (s *Server) reply(conn net.Conn, response string) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	if _, err := conn.Write([]byte(response)); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}
