package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/ircctl/internal/auth"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/danmuck/ircctl/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

type recorder struct {
	jobs []engine.Job
}

func (r *recorder) Push(job engine.Job) {
	r.jobs = append(r.jobs, job)
}

func (r *recorder) take() []engine.Job {
	jobs := r.jobs
	r.jobs = nil
	return jobs
}

var identified = engine.State{Nick: "bot", ServerAddress: "irc.example.net", Identified: true}

func event(t *testing.T, line string) protocol.ServerEvent {
	t.Helper()
	msg, err := protocol.Parse([]byte(line), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return msg.(protocol.ServerEvent)
}

func newTestBot(secret string) *Bot {
	return New(Config{
		Channels: []string{"#a", "#b"},
		Prefix:   '!',
		Secret:   auth.NewSharedSecret(secret),
		Logger:   log.Logger,
	})
}

func TestAutoJoinOnFirstNumericAboveTen(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}

	b.HandleMessage(event(t, ":irc.example.net 001 bot :Welcome\r\n"), identified, q)
	if len(q.jobs) != 0 {
		t.Fatalf("numeric 001 must not trigger joins: %#v", q.jobs)
	}
	b.HandleMessage(event(t, ":irc.example.net 251 bot :There are 3 users\r\n"), identified, q)
	got := q.take()
	if len(got) != 2 || got[0] != (engine.Join{Channel: "#a"}) || got[1] != (engine.Join{Channel: "#b"}) {
		t.Fatalf("unexpected joins: %#v", got)
	}
	b.HandleMessage(event(t, ":irc.example.net 376 bot :End of MOTD\r\n"), identified, q)
	if len(q.jobs) != 0 {
		t.Fatalf("auto-join must happen once: %#v", q.jobs)
	}
}

func TestAutoJoinIgnoresErrorNumerics(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	for _, line := range []string{
		":irc.example.net 433 * bot :Nickname is already in use\r\n",
		":irc.example.net 451 * :You have not registered\r\n",
		":irc.example.net 599 * :error\r\n",
	} {
		b.HandleMessage(event(t, line), identified, q)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("error numerics must not trigger joins: %#v", q.jobs)
	}
	b.HandleMessage(event(t, ":irc.example.net 600 bot :x\r\n"), identified, q)
	if got := q.take(); len(got) != 2 {
		t.Fatalf("numeric 600 should trigger joins, got %#v", got)
	}
}

func TestPingRepliesInChannelAndPrivate(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!ping\r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0] != (engine.Reply{Target: "#a", Sender: "alice", Text: "pong"}) {
		t.Fatalf("unexpected channel reply: %#v", got)
	}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!PING\r\n"), identified, q)
	got := q.take()
	if len(got) != 1 || got[0] != (engine.Reply{Target: "bot", Sender: "alice", Text: "pong"}) {
		t.Fatalf("unexpected private reply: %#v", got)
	}
	out, err := engine.Translate(got[0], identified.Nick)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Argument != "alice :pong" {
		t.Fatalf("private reply should redirect to sender, got %q", out.Argument)
	}
}

func TestIgnoresNonCommands(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	for _, line := range []string{
		":alice!a@h PRIVMSG #a :hello\r\n",
		":alice!a@h PRIVMSG #a :!\r\n",
		":alice!a@h PRIVMSG #a :!nosuchcommand\r\n",
		":irc.example.net PRIVMSG bot :!ping\r\n",
		":alice!a@h NOTICE #a :!ping\r\n",
	} {
		b.HandleMessage(event(t, line), identified, q)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("unexpected jobs: %#v", q.jobs)
	}
}

func TestAuthFlow(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	alice := protocol.Peer{Nick: "alice", User: "a", Host: "h"}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!auth s3cret\r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0].(engine.Reply).Text != "auth only works in a private message" {
		t.Fatalf("channel auth should be refused: %#v", got)
	}
	if _, ok := b.Operator(); ok {
		t.Fatalf("channel auth must not record an operator")
	}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth wrong\r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0].(engine.Reply).Text != "authentication failed" {
		t.Fatalf("unexpected reply for bad secret: %#v", got)
	}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth s3cret\r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0].(engine.Reply).Text != "authenticated" {
		t.Fatalf("unexpected reply for good secret: %#v", got)
	}
	op, ok := b.Operator()
	if !ok || op != alice {
		t.Fatalf("unexpected operator: %+v ok=%v", op, ok)
	}
}

func TestOperatorGateUsesFullIdentity(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth s3cret\r\n"), identified, q)
	q.take()

	impostors := []string{
		":alice!a@other PRIVMSG #a :!join #x\r\n",
		":alice!b@h PRIVMSG #a :!join #x\r\n",
		":mallory!a@h PRIVMSG #a :!join #x\r\n",
	}
	for _, line := range impostors {
		b.HandleMessage(event(t, line), identified, q)
		got := q.take()
		if len(got) != 1 || got[0].(engine.Reply).Text != "not authorized" {
			t.Fatalf("%q: expected refusal, got %#v", line, got)
		}
	}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!join #x\r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0] != (engine.Join{Channel: "#x"}) {
		t.Fatalf("operator join failed: %#v", got)
	}
}

func TestOperatorCommands(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth s3cret\r\n"), identified, q)
	q.take()

	cases := []struct {
		line string
		want engine.Job
	}{
		{":alice!a@h PRIVMSG bot :!part #x see you later\r\n", engine.Part{Channel: "#x", Reason: "see you later"}},
		{":alice!a@h PRIVMSG bot :!part #x\r\n", engine.Part{Channel: "#x"}},
		{":alice!a@h PRIVMSG bot :!say #go hello  world\r\n", engine.Reply{Target: "#go", Text: "hello  world"}},
		{":alice!a@h PRIVMSG bot :!quit maintenance\r\n", engine.Quit{Reason: "maintenance"}},
		{":alice!a@h PRIVMSG bot :!join\r\n", engine.Reply{Target: "bot", Sender: "alice", Text: "usage: !join <channel>"}},
		{":alice!a@h PRIVMSG bot :!say #go\r\n", engine.Reply{Target: "bot", Sender: "alice", Text: "usage: !say <target> <text>"}},
	}
	for _, tc := range cases {
		b.HandleMessage(event(t, tc.line), identified, q)
		got := q.take()
		if len(got) != 1 || got[0] != tc.want {
			t.Fatalf("%q: got=%#v want=%#v", tc.line, got, tc.want)
		}
	}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!deauth\r\n"), identified, q)
	q.take()
	if _, ok := b.Operator(); ok {
		t.Fatalf("deauth should clear the operator")
	}
}

func TestOperatorQuitClearsOperator(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth s3cret\r\n"), identified, q)
	b.HandleMessage(event(t, ":bob!b@h QUIT :bye\r\n"), identified, q)
	if _, ok := b.Operator(); !ok {
		t.Fatalf("another peer quitting must not clear the operator")
	}
	b.HandleMessage(event(t, ":alice!a@h QUIT :bye\r\n"), identified, q)
	if _, ok := b.Operator(); ok {
		t.Fatalf("operator quit should clear the operator")
	}
}

func TestEmptySecretNeverAuthenticates(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("")
	q := &recorder{}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG bot :!auth\r\n"), identified, q)
	if _, ok := b.Operator(); ok {
		t.Fatalf("empty secret must never authenticate")
	}
}

func TestHelpAndWhoami(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	q := &recorder{}

	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!help\r\n"), identified, q)
	got := q.take()
	if len(got) != 1 || got[0].(engine.Reply).Text != "commands: !auth !help !ping !whoami" {
		t.Fatalf("unexpected help: %#v", got)
	}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!help join\r\n"), identified, q)
	got = q.take()
	if len(got) != 1 || got[0].(engine.Reply).Text != "!join <channel> - join a channel" {
		t.Fatalf("unexpected help for join: %#v", got)
	}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!whoami\r\n"), identified, q)
	got = q.take()
	if len(got) != 1 || got[0].(engine.Reply).Text != "alice!a@h is not the operator" {
		t.Fatalf("unexpected whoami: %#v", got)
	}
}

func TestRegistryValidation(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	noop := func(*Request) {}
	if err := r.Register(Command{Name: "echo", Help: "echo text", Run: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Command{Name: "echo", Help: "again", Run: noop}); !errors.Is(err, ErrCommandExists) {
		t.Fatalf("expected ErrCommandExists, got %v", err)
	}
	if err := r.Register(Command{Name: "echo2", Help: "x"}); !errors.Is(err, ErrCommandNil) {
		t.Fatalf("expected ErrCommandNil, got %v", err)
	}
	for _, name := range []string{"", "Echo", "-echo", "echo-", "ec ho"} {
		if err := r.Register(Command{Name: name, Help: "x", Run: noop}); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("%q: expected ErrInvalidCommand, got %v", name, err)
		}
	}
	if err := r.Register(Command{Name: "a-b", Help: "x", Run: noop}); err != nil {
		t.Fatalf("hyphenated name should be valid: %v", err)
	}
	list := r.List()
	if len(list) != 2 || list[0].Name != "a-b" || list[1].Name != "echo" {
		t.Fatalf("unexpected listing: %+v", list)
	}
}

func TestCustomCommandRuns(t *testing.T) {
	testlog.Start(t)
	b := newTestBot("s3cret")
	err := b.Registry().Register(Command{
		Name: "echo",
		Help: "repeat text",
		Run:  func(r *Request) { r.Reply(r.Text) },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	q := &recorder{}
	b.HandleMessage(event(t, ":alice!a@h PRIVMSG #a :!echo  spaced out \r\n"), identified, q)
	if got := q.take(); len(got) != 1 || got[0].(engine.Reply).Text != "spaced out" {
		t.Fatalf("unexpected echo: %#v", got)
	}
}
