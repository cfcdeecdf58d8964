package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/ircctl/internal/protocol"
)

// ErrUnknownJob reports a Job value Translate has no command for.
var ErrUnknownJob = errors.New("engine: unknown job")

// Job is an outbound intent queued by an agent.
type Job interface {
	isJob()
	// Kind is a short label used in logs and metrics.
	Kind() string
}

type Join struct {
	Channel string
}

// Reply delivers Text to Target. When Target is the engine's own nick the
// reply goes to Sender instead.
type Reply struct {
	Target string
	Sender string
	Text   string
}

type Part struct {
	Channel string
	Reason  string
}

type Notice struct {
	Target string
	Text   string
}

type Quit struct {
	Reason string
}

func (Join) isJob()   {}
func (Reply) isJob()  {}
func (Part) isJob()   {}
func (Notice) isJob() {}
func (Quit) isJob()   {}

func (Join) Kind() string   { return "join" }
func (Reply) Kind() string  { return "reply" }
func (Part) Kind() string   { return "part" }
func (Notice) Kind() string { return "notice" }
func (Quit) Kind() string   { return "quit" }

// Translate maps a job to exactly one outbound command. nick is the
// engine's current nickname.
func Translate(job Job, nick string) (Outbound, error) {
	switch j := job.(type) {
	case Join:
		return Outbound{Command: protocol.CmdJoin, Argument: clean(j.Channel)}, nil
	case Reply:
		target := j.Target
		if strings.EqualFold(target, nick) && j.Sender != "" {
			target = j.Sender
		}
		return Outbound{Command: protocol.CmdPrivmsg, Argument: clean(target) + " " + protocol.Trailing(clean(j.Text))}, nil
	case Part:
		arg := clean(j.Channel)
		if j.Reason != "" {
			arg += " " + protocol.Trailing(clean(j.Reason))
		}
		return Outbound{Command: protocol.CmdPart, Argument: arg}, nil
	case Notice:
		return Outbound{Command: protocol.CmdNotice, Argument: clean(j.Target) + " " + protocol.Trailing(clean(j.Text))}, nil
	case Quit:
		if j.Reason == "" {
			return Outbound{Command: protocol.CmdQuit}, nil
		}
		return Outbound{Command: protocol.CmdQuit, Argument: protocol.Trailing(clean(j.Reason))}, nil
	}
	return Outbound{}, fmt.Errorf("%w: %T", ErrUnknownJob, job)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// clean keeps queued text on one wire line.
func clean(s string) string {
	return lineBreaks.Replace(s)
}
