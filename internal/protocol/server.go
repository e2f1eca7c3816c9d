package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"baubot/internal/broadcast"
	rtsup "baubot/internal/runtime/supervisor"
	logx "baubot/pkg/logx"
)

// Dispatcher is the engine entry point the server feeds.
type Dispatcher interface {
	Dispatch(ctx context.Context, req broadcast.Request) <-chan broadcast.PendingResponse
}

type DispatchFunc func(ctx context.Context, req broadcast.Request) <-chan broadcast.PendingResponse

func (f DispatchFunc) Dispatch(ctx context.Context, req broadcast.Request) <-chan broadcast.PendingResponse {
	return f(ctx, req)
}

type ServerConfig struct {
	Listen string
	// ReadTimeout bounds how long a client may take to deliver its request.
	ReadTimeout time.Duration
	// WriteTimeout bounds each response write.
	WriteTimeout time.Duration
}

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxRequestBytes     = 1 << 20
)

// Server accepts connections and answers each with one dispatch.
type Server struct {
	cfg  ServerConfig
	disp Dispatcher
	log  logx.Logger

	mu  sync.Mutex
	ln  net.Listener
	sup *rtsup.Supervisor
}

func NewServer(cfg ServerConfig, disp Dispatcher, log logx.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, disp: disp, log: log}
}

// Start listens on cfg.Listen and serves in the background until ctx is
// canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("protocol: listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve takes ownership of ln and starts the accept loop in the background.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = ln.Close()
		return errors.New("protocol: server already running")
	}
	s.ln = ln
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithQuietLifecycle(),
	)
	sup := s.sup
	sup.Go0("accept", func(ctx context.Context) { s.acceptLoop(ctx, sup, ln) })
	sup.Go0("accept.close_on_cancel", func(ctx context.Context) {
		<-ctx.Done()
		_ = ln.Close()
	})
	s.log.Info("listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener, abandons in-flight dispatches and waits for
// connection handlers to return.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.ln = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (s *Server) acceptLoop(ctx context.Context, sup *rtsup.Supervisor, ln net.Listener) {
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// Back off on transient accept errors (e.g. too many open files).
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(2*tempDelay, time.Second)
			}
			s.log.Error("accept failed", logx.Err(err), logx.Duration("retry_in", tempDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(tempDelay):
			}
			continue
		}
		tempDelay = 0
		sup.Go0("conn", func(ctx context.Context) {
			if err := s.handle(ctx, conn); err != nil {
				s.log.Warn("connection failed", logx.String("remote", conn.RemoteAddr().String()), logx.Err(err))
			}
		})
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	id := uuid.NewString()
	log := s.log.With(logx.String("conn_id", id), logx.String("remote", conn.RemoteAddr().String()))
	defer closeConn(conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	enc := NewEncoder(conn)
	req, rest, derr := s.readRequest(conn)
	if derr != nil {
		log.Debug("rejecting request", logx.String("kind", string(derr.Kind)), logx.String("detail", derr.Detail))
		return s.write(conn, enc, InvalidDataResponse(derr))
	}
	log.Debug("request accepted",
		logx.String("sender", req.Sender),
		logx.Int("recipients", len(req.Recipients)),
		logx.Bool("prompt", req.Responses != nil),
	)

	// Nothing more is expected from the client. Its read side ending, by
	// EOF or error, means the caller is gone and open prompts are abandoned.
	go func() {
		n, err := io.Copy(io.Discard, io.MultiReader(rest, conn))
		if ctx.Err() == nil {
			log.Debug("client went away", logx.Int64("trailing_bytes", n), logx.Err(err))
		}
		cancel()
	}()

	started := time.Now()
	n := 0
	for pr := range s.disp.Dispatch(ctx, req.Broadcast(id)) {
		if err := s.write(conn, enc, RecipientResponse(pr)); err != nil {
			// Canceling abandons the remaining prompts; their goroutines
			// finish into the buffered channel.
			return fmt.Errorf("write response: %w", err)
		}
		n++
	}
	log.Debug("request done", logx.Int("responses", n), logx.Duration("took", time.Since(started)))
	return nil
}

// readRequest decodes exactly one JSON value, which ends at its closing
// brace. ReadTimeout bounds the wait. rest holds bytes the decoder read past
// the value.
func (s *Server) readRequest(conn net.Conn) (req Request, rest io.Reader, derr *DecodeError) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var raw json.RawMessage
	dec := json.NewDecoder(io.LimitReader(conn, maxRequestBytes))
	if err := dec.Decode(&raw); err != nil {
		return Request{}, nil, invalidJSON(err)
	}
	req, err := DecodeRequest(raw)
	if err != nil {
		if errors.As(err, &derr) {
			return Request{}, nil, derr
		}
		return Request{}, nil, invalidJSON(err)
	}
	return req, dec.Buffered(), nil
}

func (s *Server) write(conn net.Conn, enc *Encoder, r Response) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return enc.Encode(r)
}

type closeWriter interface{ CloseWrite() error }

// closeConn flushes with a write half-close before the full close.
func closeConn(conn net.Conn) {
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.Close()
}
