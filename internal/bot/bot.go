// Package bot is the reactive agent behind an engine. It joins the configured
// channels once the server starts talking numerics, and answers prefix
// commands sent over PRIVMSG. One operator may authenticate with the shared
// secret to unlock the privileged commands.
package bot

import (
	"strings"

	"github.com/danmuck/ircctl/internal/auth"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/rs/zerolog"
)

// autoJoinAfter is the numeric code above which the server is considered
// ready for channel joins. Error replies (400-599) never count.
const autoJoinAfter = 10

func readyForJoin(code uint16) bool {
	return code > autoJoinAfter && (code < 400 || code > 599)
}

type Config struct {
	Channels []string
	// Prefix marks a PRIVMSG as a command, e.g. '!'.
	Prefix byte
	Secret auth.Validator
	Logger zerolog.Logger
}

// Bot implements engine.Agent. It is driven from a single engine goroutine
// and is not safe for concurrent use.
type Bot struct {
	cfg      Config
	registry *Registry
	log      zerolog.Logger

	joined   bool
	operator *protocol.Peer
}

// New returns a bot with the built-in commands registered.
func New(cfg Config) *Bot {
	if cfg.Prefix == 0 {
		cfg.Prefix = '!'
	}
	if cfg.Secret == nil {
		cfg.Secret = auth.NewSharedSecret("")
	}
	b := &Bot{
		cfg:      cfg,
		registry: NewRegistry(),
		log:      cfg.Logger.With().Str("component", "bot").Logger(),
	}
	for _, cmd := range builtins() {
		if err := b.registry.Register(cmd); err != nil {
			panic(err)
		}
	}
	return b
}

func (b *Bot) Registry() *Registry {
	return b.registry
}

// Operator returns the authenticated peer, if any.
func (b *Bot) Operator() (protocol.Peer, bool) {
	if b.operator == nil {
		return protocol.Peer{}, false
	}
	return *b.operator, true
}

// IsOperator reports whether p is exactly the recorded operator.
func (b *Bot) IsOperator(p protocol.Peer) bool {
	return b.operator != nil && *b.operator == p
}

func (b *Bot) HandleMessage(ev protocol.ServerEvent, st engine.State, q engine.Pusher) {
	switch body := ev.Kind.(type) {
	case protocol.Numeric:
		if readyForJoin(body.Code) && !b.joined {
			b.joined = true
			for _, ch := range b.cfg.Channels {
				q.Push(engine.Join{Channel: ch})
			}
			b.log.Info().Strs("channels", b.cfg.Channels).Uint16("numeric", body.Code).Msg("bot.autojoin")
		}
	case protocol.Privmsg:
		peer, ok := ev.Peer()
		if !ok {
			return
		}
		b.dispatch(ev, peer, body.Text, st, q)
	case protocol.Quit:
		if peer, ok := ev.Peer(); ok && b.IsOperator(peer) {
			b.operator = nil
			b.log.Info().Str("peer", peer.String()).Msg("bot.operator.quit")
		}
	}
}

func (b *Bot) dispatch(ev protocol.ServerEvent, peer protocol.Peer, text string, st engine.State, q engine.Pusher) {
	if len(text) < 2 || text[0] != b.cfg.Prefix {
		return
	}
	name, rest, _ := strings.Cut(text[1:], " ")
	cmd, ok := b.registry.Resolve(name)
	if !ok {
		return
	}
	req := &Request{
		Peer:   peer,
		Target: ev.Target,
		Args:   strings.Fields(rest),
		Text:   strings.TrimSpace(rest),
		State:  st,
		bot:    b,
		queue:  q,
	}
	if cmd.OperatorOnly && !b.IsOperator(peer) {
		b.log.Warn().Str("command", cmd.Name).Str("peer", peer.String()).Msg("bot.command.denied")
		req.Reply("not authorized")
		return
	}
	b.log.Debug().Str("command", cmd.Name).Str("peer", peer.String()).Msg("bot.command")
	cmd.Run(req)
}

// Request is one command invocation.
type Request struct {
	Peer protocol.Peer
	// Target is where the command was sent: a channel or the bot's nick.
	Target string
	Args   []string
	// Text is everything after the command name, trimmed.
	Text  string
	State engine.State

	bot   *Bot
	queue engine.Pusher
}

// Private reports whether the command was sent directly to the bot.
func (r *Request) Private() bool {
	return strings.EqualFold(r.Target, r.State.Nick)
}

// Reply answers where the command came from; direct messages are answered
// to the sender.
func (r *Request) Reply(text string) {
	r.queue.Push(engine.Reply{Target: r.Target, Sender: r.Peer.Nick, Text: text})
}

func (r *Request) Push(job engine.Job) {
	r.queue.Push(job)
}

func (r *Request) Bot() *Bot {
	return r.bot
}
