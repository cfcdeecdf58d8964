package bot

import (
	"strings"

	"github.com/danmuck/ircctl/internal/engine"
)

func builtins() []Command {
	return []Command{
		{Name: "auth", Usage: "<secret>", Help: "become the operator (private message only)", Run: runAuth},
		{Name: "deauth", Help: "drop operator status", OperatorOnly: true, Run: runDeauth},
		{Name: "help", Help: "list commands", Run: runHelp},
		{Name: "ping", Help: "check the bot is alive", Run: func(r *Request) { r.Reply("pong") }},
		{Name: "whoami", Help: "show your identity and status", Run: runWhoami},
		{Name: "join", Usage: "<channel>", Help: "join a channel", OperatorOnly: true, Run: runJoin},
		{Name: "part", Usage: "<channel> [reason]", Help: "leave a channel", OperatorOnly: true, Run: runPart},
		{Name: "say", Usage: "<target> <text>", Help: "send a message", OperatorOnly: true, Run: runSay},
		{Name: "quit", Usage: "[reason]", Help: "disconnect from the server", OperatorOnly: true, Run: runQuit},
	}
}

func runAuth(r *Request) {
	b := r.Bot()
	if !r.Private() {
		r.Reply("auth only works in a private message")
		return
	}
	if err := b.cfg.Secret.Validate(r.Text); err != nil {
		b.log.Warn().Str("peer", r.Peer.String()).Msg("bot.auth.failed")
		r.Reply("authentication failed")
		return
	}
	peer := r.Peer
	b.operator = &peer
	b.log.Info().Str("peer", peer.String()).Msg("bot.auth.ok")
	r.Reply("authenticated")
}

func runDeauth(r *Request) {
	r.Bot().operator = nil
	r.Reply("deauthenticated")
}

func runHelp(r *Request) {
	b := r.Bot()
	prefix := string(b.cfg.Prefix)
	names := make([]string, 0, len(b.registry.items))
	for _, cmd := range b.registry.List() {
		if cmd.OperatorOnly && !b.IsOperator(r.Peer) {
			continue
		}
		names = append(names, prefix+cmd.Name)
	}
	if len(r.Args) == 0 {
		r.Reply("commands: " + strings.Join(names, " "))
		return
	}
	cmd, ok := b.registry.Resolve(strings.TrimPrefix(r.Args[0], prefix))
	if !ok {
		r.Reply("unknown command " + r.Args[0])
		return
	}
	r.Reply(usage(prefix, cmd) + " - " + cmd.Help)
}

func runWhoami(r *Request) {
	status := "not the operator"
	if r.Bot().IsOperator(r.Peer) {
		status = "the operator"
	}
	r.Reply(r.Peer.String() + " is " + status)
}

func runJoin(r *Request) {
	if len(r.Args) != 1 {
		r.Reply("usage: " + usage(string(r.Bot().cfg.Prefix), Command{Name: "join", Usage: "<channel>"}))
		return
	}
	r.Push(engine.Join{Channel: r.Args[0]})
}

func runPart(r *Request) {
	if len(r.Args) == 0 {
		r.Reply("usage: " + usage(string(r.Bot().cfg.Prefix), Command{Name: "part", Usage: "<channel> [reason]"}))
		return
	}
	_, reason, _ := strings.Cut(r.Text, " ")
	r.Push(engine.Part{Channel: r.Args[0], Reason: strings.TrimSpace(reason)})
}

func runSay(r *Request) {
	target, text, ok := strings.Cut(r.Text, " ")
	text = strings.TrimSpace(text)
	if !ok || target == "" || text == "" {
		r.Reply("usage: " + usage(string(r.Bot().cfg.Prefix), Command{Name: "say", Usage: "<target> <text>"}))
		return
	}
	r.Push(engine.Reply{Target: target, Text: text})
}

func runQuit(r *Request) {
	r.Push(engine.Quit{Reason: r.Text})
}

func usage(prefix string, cmd Command) string {
	if cmd.Usage == "" {
		return prefix + cmd.Name
	}
	return prefix + cmd.Name + " " + cmd.Usage
}
