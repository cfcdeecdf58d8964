package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ircctl/internal/config"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/protocol/session"
	"github.com/danmuck/ircctl/internal/testutil/ircserver"
	"github.com/danmuck/ircctl/internal/testutil/testlog"
	"github.com/danmuck/ircctl/internal/testutil/tlstest"
)

func baseConfig(servers ...config.Server) config.Config {
	transport := session.DefaultConfig()
	transport.ConnectTimeout = time.Second
	transport.HandshakeTimeout = 2 * time.Second
	transport.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 1, MaxDelay: 10 * time.Millisecond}
	return config.Config{
		Identity:      engine.Identity{Nick: "bot", AltNick: "bot_", Username: "botuser", Realname: "Bot Real"},
		CommandPrefix: "!",
		AdminSecret:   "s3cret",
		QuitMessage:   "bye",
		Transport:     transport,
		Servers:       servers,
	}
}

func serverEntry(srv *ircserver.Server, channels ...string) config.Server {
	return config.Server{Host: srv.Host(), Port: srv.Port(), Channels: channels}
}

func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	_ = ln.Close()
	return port
}

func runAsync(ctx context.Context, svc *Service) <-chan error {
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	return nil
}

func TestServiceSessionLifecycle(t *testing.T) {
	testlog.Start(t)
	srv := ircserver.Start(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, New(baseConfig(serverEntry(srv, "#ircctl"))))

	c := srv.Accept(t)
	c.Send(t, ":irc.test NOTICE * :*** Looking up your hostname")
	c.Expect(t, "NICK bot")
	c.Expect(t, "USER botuser 0 * :Bot Real")

	c.Send(t, ":irc.test 001 bot :Welcome")
	c.Send(t, ":irc.test 251 bot :There are 2 users")
	c.Expect(t, "JOIN #ircctl")

	c.Send(t, "PING :irc.test")
	c.Expect(t, "PONG irc.test")

	c.Send(t, ":alice!a@h PRIVMSG bot :!ping")
	c.Expect(t, "PRIVMSG alice :pong")

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("cancellation should not be an error: %v", err)
	}
	lines := c.ExpectClosed(t)
	if len(lines) != 1 || lines[0] != "QUIT :bye" {
		t.Fatalf("expected QUIT before close, got %q", lines)
	}
}

func TestServiceAutoJoinSurvivesNickCollision(t *testing.T) {
	testlog.Start(t)
	srv := ircserver.Start(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, New(baseConfig(serverEntry(srv, "#go"))))

	c := srv.Accept(t)
	c.Send(t, ":irc.test NOTICE * :*** Looking up your hostname")
	c.Expect(t, "NICK bot")
	c.Expect(t, "USER botuser 0 * :Bot Real")
	c.Send(t, ":irc.test 433 * bot :Nickname is already in use")
	c.Expect(t, "NICK bot_")
	c.Send(t, ":irc.test NOTICE * :*** Checking ident")
	c.Send(t, ":irc.test 001 bot_ :Welcome")
	c.Send(t, ":irc.test 251 bot_ :There are 2 users")
	c.Expect(t, "JOIN #go")

	c.Send(t, ":alice!a@h PRIVMSG bot_ :!ping")
	c.Expect(t, "PRIVMSG alice :pong")

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceOperatorFlowOverTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "ircctl-service-ca")
	srv := ircserver.Start(t, ca.ServerConfig(t, "127.0.0.1"))
	entry := serverEntry(srv)
	entry.Secure = true
	entry.TLS.CAFile = ca.CAFile()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, New(baseConfig(entry)))

	c := srv.Accept(t)
	c.Send(t, ":irc.test NOTICE * :hello")
	c.Expect(t, "NICK bot")
	c.Expect(t, "USER botuser 0 * :Bot Real")

	c.Send(t, ":alice!a@h PRIVMSG bot :!auth s3cret")
	c.Expect(t, "PRIVMSG alice :authenticated")
	c.Send(t, ":alice!a@h PRIVMSG bot :!join #ops")
	c.Expect(t, "JOIN #ops")
	c.Send(t, ":alice!a@h PRIVMSG bot :!quit done here")
	c.Expect(t, "QUIT :done here")

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceStopsWhenRemoteClosesWithoutRestart(t *testing.T) {
	testlog.Start(t)
	srv := ircserver.Start(t, nil)
	done := runAsync(context.Background(), New(baseConfig(serverEntry(srv))))

	c := srv.Accept(t)
	c.Send(t, ":irc.test NOTICE * :hello")
	c.Expect(t, "NICK bot")
	c.Expect(t, "USER botuser 0 * :Bot Real")
	_ = c.Close()

	err := waitDone(t, done)
	if !errors.Is(err, engine.ErrRemoteClosed) {
		t.Fatalf("expected ErrRemoteClosed, got %v", err)
	}
	if !strings.Contains(err.Error(), srv.Host()) {
		t.Fatalf("error should name the endpoint: %v", err)
	}
}

func TestServiceRestartsUntilAttemptsExhausted(t *testing.T) {
	testlog.Start(t)
	srv := ircserver.Start(t, nil)
	cfg := baseConfig(serverEntry(srv))
	cfg.Supervisor = config.Supervisor{Restart: true, MaxAttempts: 2}
	done := runAsync(context.Background(), New(cfg))

	for i := 0; i < 3; i++ {
		c := srv.Accept(t)
		_ = c.Close()
	}

	err := waitDone(t, done)
	if !errors.Is(err, ErrRestartsExhausted) {
		t.Fatalf("expected ErrRestartsExhausted, got %v", err)
	}
	if !errors.Is(err, engine.ErrRemoteClosed) {
		t.Fatalf("expected the last failure to be wrapped, got %v", err)
	}
}

func TestServiceDialFailureIsClassified(t *testing.T) {
	testlog.Start(t)
	cfg := baseConfig(config.Server{Host: "127.0.0.1", Port: closedPort(t)})
	err := New(cfg).Run(context.Background())
	if !errors.Is(err, session.ErrTCPConnectFailed) {
		t.Fatalf("expected ErrTCPConnectFailed, got %v", err)
	}
}

func TestServiceWorkerFailureDoesNotStopSiblings(t *testing.T) {
	testlog.Start(t)
	srv := ircserver.Start(t, nil)
	cfg := baseConfig(
		config.Server{Host: "127.0.0.1", Port: closedPort(t)},
		serverEntry(srv),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, New(cfg))

	c := srv.Accept(t)
	c.Send(t, ":irc.test NOTICE * :hello")
	c.Expect(t, "NICK bot")
	c.Expect(t, "USER botuser 0 * :Bot Real")

	cancel()
	err := waitDone(t, done)
	if !errors.Is(err, session.ErrTCPConnectFailed) {
		t.Fatalf("expected the failed sibling's error, got %v", err)
	}
}

func TestServiceUsesCustomDialer(t *testing.T) {
	testlog.Start(t)
	cfg := baseConfig(config.Server{Host: "irc.invalid", Port: 6667})
	dialErr := errors.New("no route")
	var dialed session.Target
	svc := New(cfg).WithDialer(func(ctx context.Context, target session.Target, _ session.Config) (engine.Transport, error) {
		dialed = target
		return nil, dialErr
	})
	if err := svc.Run(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("expected dialer error, got %v", err)
	}
	if dialed.Host != "irc.invalid" || dialed.Port != 6667 {
		t.Fatalf("unexpected dial target: %+v", dialed)
	}
}

func TestServiceRequiresEndpoints(t *testing.T) {
	testlog.Start(t)
	if err := New(baseConfig()).Run(context.Background()); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
