package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

var (
	ErrTCPConnectFailed   = errors.New("session: tcp connect failed")
	ErrTLSHandshakeFailed = errors.New("session: tls handshake failed")
)

// DialPhase names the leg of a dial that failed.
type DialPhase string

const (
	PhaseTCP DialPhase = "tcp"
	PhaseTLS DialPhase = "tls"
)

// DialError reports which leg of a dial broke. errors.Is matches
// ErrTCPConnectFailed or ErrTLSHandshakeFailed by phase.
type DialError struct {
	Phase DialPhase
	Addr  string
	Err   error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("session: %s dial %s: %v", e.Phase, e.Addr, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

func (e *DialError) Is(target error) bool {
	switch e.Phase {
	case PhaseTCP:
		return target == ErrTCPConnectFailed
	case PhaseTLS:
		return target == ErrTLSHandshakeFailed
	}
	return false
}

// Target is the remote endpoint to dial.
type Target struct {
	Host   string
	Port   uint16
	Secure bool
}

func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

func (t Target) String() string {
	if t.Secure {
		return "ircs://" + t.Address()
	}
	return "irc://" + t.Address()
}

// Dial connects to target. Secure targets run the tls handshake over the
// connected socket; a failure in either leg is a *DialError.
func Dial(ctx context.Context, target Target, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	addr := target.Address()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DialError{Phase: PhaseTCP, Addr: addr, Err: err}
	}
	if !target.Secure {
		return newConn(rawConn, cfg, false), nil
	}

	conn, err := Upgrade(ctx, rawConn, target.Host, cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, &DialError{Phase: PhaseTLS, Addr: addr, Err: err}
	}
	return newConn(conn, cfg, true), nil
}

// Upgrade runs a client tls handshake over an already connected stream,
// bounded by cfg.HandshakeTimeout. The raw stream is not closed on failure.
func Upgrade(ctx context.Context, raw net.Conn, host string, cfg Config) (net.Conn, error) {
	tlsCfg, err := cfg.TLS.clientConfig(host)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.WithDefaults().HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		return nil, err
	}
	return conn, nil
}

// Conn is the live duplex stream for one engine.
type Conn struct {
	conn         net.Conn
	secure       bool
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newConn(conn net.Conn, cfg Config, secure bool) *Conn {
	return &Conn{
		conn:         conn,
		secure:       secure,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Read blocks until bytes arrive. With no ReadTimeout it never times out.
func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Read(p)
}

// Write sends all of p before returning, retrying short writes until the
// stream accepts every byte or fails.
func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	written := 0
	for written < len(p) {
		n, err := c.conn.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Secure() bool {
	return c.secure
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
