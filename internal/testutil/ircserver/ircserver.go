// Package ircserver is a scripted IRC server for tests. Tests accept a
// client connection, send server lines and assert on what the client writes.
package ircserver

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

const defaultWait = 3 * time.Second

type Server struct {
	ln    net.Listener
	conns chan net.Conn
}

// Start listens on 127.0.0.1:0. A non-nil tlsCfg serves TLS.
func Start(t *testing.T, tlsCfg *tls.Config) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ircserver listen: %v", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s := &Server{ln: ln, conns: make(chan net.Conn, 8)}
	go s.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			close(s.conns)
			return
		}
		s.conns <- conn
	}
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

func (s *Server) Port() uint16 {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return uint16(n)
}

// Close stops accepting. Accepted connections stay open.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Accept waits for the next client.
func (s *Server) Accept(t *testing.T) *Conn {
	t.Helper()
	select {
	case conn, ok := <-s.conns:
		if !ok {
			t.Fatalf("ircserver: listener closed")
		}
		c := &Conn{conn: conn, r: bufio.NewReader(conn)}
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(defaultWait):
		t.Fatalf("ircserver: no client connected within %v", defaultWait)
	}
	return nil
}

// Conn is one accepted client.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
}

// Send writes line followed by CRLF.
func (c *Conn) Send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("ircserver send %q: %v", line, err)
	}
}

// ReadLine returns the next client line without its terminator.
func (c *Conn) ReadLine(t *testing.T) string {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(defaultWait))
	line, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("ircserver read (partial %q): %v", line, err)
	}
	return strings.TrimRight(line, "\r\n")
}

// Expect reads the next client line and fails unless it equals want.
func (c *Conn) Expect(t *testing.T, want string) {
	t.Helper()
	if got := c.ReadLine(t); got != want {
		t.Fatalf("ircserver expected %q got=%q", want, got)
	}
}

// ExpectClosed waits for the client to hang up, skipping any lines sent
// before it does, and returns them.
func (c *Conn) ExpectClosed(t *testing.T) []string {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(defaultWait))
	var lines []string
	for {
		line, err := c.r.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatalf("ircserver: client still connected after %v", defaultWait)
			}
			return lines
		}
	}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
