// Package server accepts producer and consumer connections and runs the
// request/response exchange of the aggregation protocol over them.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/protocol"
	"github.com/i474232898/weather-aggregation-server/internal/registry"
	"github.com/i474232898/weather-aggregation-server/internal/store"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// DefaultMaxBodyBytes bounds a PUT body when Options leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Options tunes the connection handler.
type Options struct {
	MaxBodyBytes int
}

// Server is the aggregation protocol endpoint.
type Server struct {
	service  *weather.Service
	registry *registry.Registry
	log      *zap.SugaredLogger
	maxBody  int
	now      func() time.Time

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New creates a new Server.
func New(service *weather.Service, reg *registry.Registry, opts Options, log *zap.SugaredLogger) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Server{
		service:  service,
		registry: reg,
		log:      log,
		maxBody:  maxBody,
		now:      time.Now,
		conns:    make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and serves connections until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln, handling each on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Infow("aggregation server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warnw("accept failed, retrying", "error", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight exchanges.
// Connections still open when ctx expires are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// handleConn runs the per-connection state machine. Every exit path releases
// the registry entry and closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	log := s.log.With("session", id, "remote", remote)

	s.registry.Watch(id, conn, remote, s.now())

	defer func() {
		s.registry.Remove(id)
		s.untrack(conn)
		_ = conn.Close()
		s.wg.Done()
	}()

	br := bufio.NewReader(conn)
	for {
		req, err := protocol.ReadRequest(br, s.maxBody)
		if err != nil {
			if errors.Is(err, protocol.ErrNoRequest) {
				log.Debugw("connection closed by peer", "error", err)
				return
			}
			log.Infow("rejecting malformed request", "error", err)
			resp := protocol.Text(400, s.service.Clock(), "malformed request")
			resp.Close = true
			s.write(conn, log, resp)
			return
		}

		resp := s.dispatch(id, conn, remote, req, log)
		keep := req.KeepAlive && req.Method == protocol.MethodPut && resp.Status < 300
		resp.Close = !keep

		if err := s.write(conn, log, resp); err != nil || !keep {
			return
		}
	}
}

func (s *Server) write(conn net.Conn, log *zap.SugaredLogger, resp protocol.Response) error {
	if err := protocol.WriteResponse(conn, resp); err != nil {
		log.Debugw("writing response failed", "status", resp.Status, "error", err)
		return err
	}
	return nil
}

// dispatch routes a request to its handler. A panic inside a handler becomes
// a 500 for this connection only.
func (s *Server) dispatch(id string, conn net.Conn, remote string, req *protocol.Request, log *zap.SugaredLogger) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("request handler panicked", "method", req.Method, "panic", r)
			resp = protocol.Text(500, s.service.Clock(), "internal server error")
		}
	}()

	switch req.Method {
	case protocol.MethodPut:
		return s.handlePut(id, conn, remote, req, log)
	case protocol.MethodGet:
		return s.handleGet(req, log)
	default:
		log.Infow("rejecting unsupported method", "method", req.Method)
		return protocol.Text(400, s.service.Clock(), "unsupported method")
	}
}

func (s *Server) handlePut(id string, conn net.Conn, remote string, req *protocol.Request, log *zap.SugaredLogger) protocol.Response {
	if len(bytes.TrimSpace(req.Body)) == 0 {
		return protocol.Response{Status: 204, Lamport: s.service.Clock()}
	}
	if !req.HasLamport {
		return protocol.Text(400, s.service.Clock(), "missing "+protocol.HeaderLamportClock+" header")
	}

	payload, err := weather.ParsePayload(req.Body)
	if err != nil {
		log.Infow("rejecting invalid payload", "error", err)
		return protocol.Text(400, s.service.Clock(), err.Error())
	}

	status := s.service.Put(payload, req.Lamport)
	firstContact := s.registry.Touch(id, conn, remote, s.now())

	log.Infow("observation received",
		"station", payload.StationID(),
		"lamport", req.Lamport,
		"status", status.String(),
		"newProducer", firstContact,
	)

	clock := s.service.Clock()
	switch status {
	case weather.UpdateCreated:
		return protocol.Text(201, clock, "created")
	case weather.UpdateAccepted:
		return protocol.Text(200, clock, "updated")
	default:
		return protocol.Text(200, clock, "stale update ignored")
	}
}

func (s *Server) handleGet(req *protocol.Request, log *zap.SugaredLogger) protocol.Response {
	if req.HasLamport {
		s.service.Observe(req.Lamport)
	}

	var (
		obs weather.Observation
		err error
	)
	if req.StationID != "" {
		obs, err = s.service.Station(req.StationID)
	} else {
		obs, err = s.service.Latest()
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Text(404, s.service.Clock(), "no weather data")
		}
		log.Errorw("reading observation failed", "error", err)
		return protocol.Text(500, s.service.Clock(), "internal server error")
	}

	body, err := obs.Payload.Encode()
	if err != nil {
		log.Errorw("encoding observation failed", "station", obs.StationID, "error", err)
		return protocol.Text(500, s.service.Clock(), "internal server error")
	}
	return protocol.JSON(200, s.service.Clock(), body)
}
