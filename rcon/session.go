package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"mcpanel/metrics"

	"go.uber.org/zap"
)

var (
	// ErrAuthFailed is returned when the server rejects the password.
	ErrAuthFailed = errors.New("rcon: authentication failed")
	// ErrNoPassword is returned when no password is configured.
	ErrNoPassword = errors.New("rcon: password is not configured")
	// ErrCommandTooLong is returned for bodies over MaxCommandSize.
	ErrCommandTooLong = errors.New("rcon: command too long")
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 10 * time.Second

// Config locates the RCON endpoint.
type Config struct {
	Addr     string
	Password string
	Timeout  time.Duration
}

// Execer runs a console command and returns the server's reply.
type Execer interface {
	Exec(ctx context.Context, command string) (string, error)
}

// Session holds one authenticated connection, opened on first use.
// Requests are serialised. A failed exchange drops the connection and the
// request is retried once on a fresh one.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	conn   net.Conn
	nextID int32
	dial   func(ctx context.Context, addr string) (net.Conn, error)
}

// NewSession creates a session. m may be nil.
func NewSession(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &Session{
		cfg:     cfg,
		logger:  logger.With(zap.String("addr", cfg.Addr)),
		metrics: m,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

// Exec sends command and returns the response body.
func (s *Session) Exec(ctx context.Context, command string) (string, error) {
	resp, err := s.exec(ctx, command)
	s.metrics.RCONCommand(err)
	return resp, err
}

func (s *Session) exec(ctx context.Context, command string) (string, error) {
	if len(command) > MaxCommandSize {
		return "", ErrCommandTooLong
	}
	if s.cfg.Password == "" {
		return "", ErrNoPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.conn == nil {
			if err := s.connect(ctx); err != nil {
				if errors.Is(err, ErrAuthFailed) {
					return "", err
				}
				lastErr = err
				continue
			}
		}

		resp, err := s.roundTrip(ctx, Packet{Type: TypeCommand, Body: command})
		if err == nil {
			return resp.Body, nil
		}
		s.logger.Debug("RCON exchange failed, reconnecting", zap.Error(err))
		s.reset()
		lastErr = err
	}
	return "", fmt.Errorf("rcon: %w", lastErr)
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.dial(ctx, s.cfg.Addr)
	if err != nil {
		return err
	}
	s.conn = conn

	resp, err := s.roundTrip(ctx, Packet{Type: TypeAuth, Body: s.cfg.Password})
	if err != nil {
		s.reset()
		return err
	}
	if resp.ID == -1 {
		s.reset()
		s.logger.Warn("RCON authentication rejected")
		return ErrAuthFailed
	}
	s.logger.Info("RCON connected")
	return nil
}

// roundTrip writes p with a fresh id and reads until the matching response.
// Empty type-0 packets sent ahead of an auth reply are skipped.
func (s *Session) roundTrip(ctx context.Context, p Packet) (Packet, error) {
	s.nextID++
	if s.nextID <= 0 {
		s.nextID = 1
	}
	p.ID = s.nextID

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return Packet{}, err
	}
	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WritePacket(s.conn, p); err != nil {
		return Packet{}, err
	}
	for {
		resp, err := ReadPacket(s.conn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Packet{}, ctxErr
			}
			return Packet{}, err
		}
		if p.Type == TypeAuth && resp.ID == -1 {
			return resp, nil
		}
		if resp.ID != p.ID {
			return Packet{}, fmt.Errorf("unexpected response id %d (want %d)", resp.ID, p.ID)
		}
		if p.Type == TypeAuth && resp.Type != TypeAuthResponse {
			continue
		}
		return resp, nil
	}
}

func (s *Session) reset() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close drops the connection. The session stays usable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
