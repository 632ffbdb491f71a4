// Package tcpserver accepts front-end connections and runs one request per
// connection through the gated engine.
package tcpserver

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/glossary/internal/limiter"
	"github.com/and161185/glossary/internal/protocol"
	"github.com/and161185/glossary/internal/service"
)

const maxAcceptBackoff = time.Second

// Server is the connection acceptor.
type Server struct {
	dispatcher service.Handler
	lim        limiter.Limiter
	ioTimeout  time.Duration
	log        *zap.Logger

	mu       sync.Mutex
	ln       net.Listener
	closing  bool
	handlers sync.WaitGroup
}

// New constructs a Server. lim may be nil for unbounded handlers; ioTimeout 0
// disables connection deadlines.
func New(dispatcher service.Handler, lim limiter.Limiter, ioTimeout time.Duration, log *zap.Logger) *Server {
	if lim == nil {
		lim = limiter.New(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{dispatcher: dispatcher, lim: lim, ioTimeout: ioTimeout, log: log}
}

// Serve accepts connections on ln until ctx is done or Shutdown is called, in
// which case it returns nil after every handler has finished. Any other accept
// failure closes ln and the dispatcher and is returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	if s.closing {
		_ = ln.Close()
	}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Shutdown() })
	defer stop()

	s.log.Info("accepting connections", zap.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				s.handlers.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn("accept failed, retrying", zap.Duration("backoff", backoff), zap.Error(err))
				time.Sleep(backoff)
				continue
			}
			s.log.Error("accept failed, shutting down", zap.Error(err))
			_ = s.Shutdown()
			s.handlers.Wait()
			s.dispatcher.Close()
			return err
		}
		backoff = 0

		if err := s.lim.Acquire(ctx); err != nil {
			_ = conn.Close()
			continue
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			defer s.lim.Release()
			s.handle(ctx, conn)
		}()
	}
}

// Shutdown stops accepting. Handlers already running finish on their own.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// connID returns a correlation id for one connection's log lines.
func connID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}
	return id.String()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

// handle serves exactly one exchange on conn.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	log = log.With(zap.String("conn_id", connID()))

	if s.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.ioTimeout))
	}

	req, err := protocol.ReadEnvelope(conn)
	if err != nil {
		log.Warn("read request", zap.Duration("dur", time.Since(start)), zap.Error(err))
		return
	}

	resp := req
	if req.Operation == protocol.OpDisconnect {
		log.Info("disconnect requested")
	} else {
		resp = s.dispatcher.Handle(ctx, req)
	}

	err = protocol.WriteEnvelope(conn, resp)
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		// nothing was written yet; tell the peer instead of dropping the exchange
		log.Error("response too large", zap.Stringer("op", req.Operation), zap.Error(err))
		resp = protocol.Envelope{Operation: req.Operation, Outcome: protocol.OutcomeFailed, Key: req.Key.Clone()}
		err = protocol.WriteEnvelope(conn, resp)
	}
	if err != nil {
		log.Warn("write response",
			zap.Stringer("op", req.Operation),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	log.Debug("request served",
		zap.Stringer("op", req.Operation),
		zap.Stringer("outcome", resp.Outcome),
		zap.Duration("dur", time.Since(start)),
	)
}
