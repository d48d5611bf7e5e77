package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/aicers/roxy/pkg/component"
	"github.com/aicers/roxy/pkg/config"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
)

// Handler processes one validated-or-rejected request to completion.
// The gate is the production implementation.
type Handler interface {
	Handle(ctx context.Context, req reconcile.Request) reconcile.Result
}

type Server struct {
	*component.Base
	logger      *slog.Logger
	handler     Handler
	cfg         config.ChannelConfig
	listener    net.Listener
	idleTimeout time.Duration

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

func NewServer(cfg config.ChannelConfig, h Handler) *Server {
	return &Server{
		Base:        component.NewBase("channel"),
		logger:      logger.Component(logger.Channel),
		handler:     h,
		cfg:         cfg,
		idleTimeout: cfg.IdleTimeout.Std(),
		conns:       map[net.Conn]struct{}{},
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.StartContext(ctx)

	tlsCfg, err := serverTLSConfig(s.cfg.Cert, s.cfg.Key, s.cfg.CACert)
	if err != nil {
		return err
	}

	listener, err := tls.Listen("tcp", s.cfg.Listen, tlsCfg)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("Channel listening", "addr", s.cfg.Listen)

	s.Go(s.acceptLoop)
	return nil
}

// Stop closes the listener and every live session; serve goroutines
// unblock on the closed connection rather than waiting out the idle
// timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping channel")
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.StopContext()
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// Addr reports the bound listen address, useful when Listen used port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept failed", "error", err)
			continue
		}
		s.Go(func() { s.serve(conn.(*tls.Conn)) })
	}
}

// serve handles one session. The handshake runs eagerly so that an
// unauthenticated peer is logged and dropped before any frame is read.
func (s *Server) serve(conn *tls.Conn) {
	s.track(conn)
	defer func() {
		s.untrack(conn)
		conn.Close()
	}()

	if err := conn.HandshakeContext(s.Ctx); err != nil {
		s.logger.Warn("Client authentication failed",
			"peer", conn.RemoteAddr().String(), "error",
			reconcile.WrapError(reconcile.KindTransportAuthFailed, err, "tls handshake"))
		return
	}

	peer := conn.RemoteAddr().String()
	if certs := conn.ConnectionState().PeerCertificates; len(certs) > 0 {
		peer = certs[0].Subject.CommonName + " (" + peer + ")"
	}
	s.logger.Info("Session established", "peer", peer)

	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		var req reconcile.Request
		if err := readFrame(conn, &req); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("Session closed", "peer", peer)
			case errors.Is(err, os.ErrDeadlineExceeded):
				s.logger.Info("Session idle timeout", "peer", peer)
			case s.Ctx.Err() != nil:
				// shutting down
			default:
				s.logger.Warn("Session read failed", "peer", peer, "error", err)
			}
			return
		}

		res := s.dispatch(req)

		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := writeFrame(conn, res); err != nil {
			s.logger.Warn("Session write failed", "peer", peer, "error", err)
			return
		}
	}
}

// dispatch answers unrecognized operations with NotSupported so the peer
// always gets a result for its request ID.
func (s *Server) dispatch(req reconcile.Request) reconcile.Result {
	if !reconcile.Operations[req.Operation] {
		s.logger.Warn("Unsupported operation", "id", req.ID, "operation", string(req.Operation))
		return reconcile.NotSupported(req.ID)
	}
	return s.handler.Handle(s.Ctx, req)
}
