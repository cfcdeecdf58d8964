package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	prefixSigil   = ':'
	minLineLength = 3
)

// Parse classifies one framed line. now stamps the resulting message.
//
// A nil error always comes with a complete Message. Every rejection wraps
// ErrDropped: the caller logs it and moves on to the next line.
func Parse(line []byte, now time.Time) (Message, error) {
	if len(line) < minLineLength {
		return nil, ErrLineTooShort
	}
	content := trimTerminator(line)
	if len(content) == 0 {
		return nil, ErrLineTooShort
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidText
	}
	if content[0] == prefixSigil {
		return parseServerLine(line, content[1:], now)
	}
	return parseUnprefixed(content, now)
}

func trimTerminator(line []byte) []byte {
	if bytes.HasSuffix(line, []byte("\r\n")) {
		return line[:len(line)-2]
	}
	return bytes.TrimSuffix(line, []byte("\n"))
}

func parseServerLine(raw, rest []byte, now time.Time) (Message, error) {
	meta, body := splitTrailing(rest)
	fields := strings.Fields(string(meta))
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: want origin and command, got %d tokens", ErrMissingToken, len(fields))
	}

	origin, err := parseOrigin(fields[0])
	if err != nil {
		return nil, err
	}

	ev := ServerEvent{
		Origin:  origin,
		Command: strings.ToUpper(fields[1]),
		Body:    string(body),
		Raw:     bytes.Clone(raw),
		Time:    now,
	}
	if len(fields) > 2 {
		ev.Target = fields[2]
	}
	if len(fields) > 3 {
		ev.Params = fields[3:]
		ev.Aux = strings.Join(ev.Params, "")
	}

	kind, err := classify(ev)
	if err != nil {
		return nil, err
	}
	ev.Kind = kind
	return ev, nil
}

// splitTrailing separates the metadata tokens from the free-text body. The
// body starts at the first ':' that opens a token, so colons inside an
// origin (IPv6 hosts) stay in the metadata. No such colon means an empty body.
func splitTrailing(rest []byte) ([]byte, []byte) {
	for i := 0; i < len(rest); i++ {
		if rest[i] != prefixSigil {
			continue
		}
		if i == 0 || rest[i-1] == ' ' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, nil
}

func parseOrigin(tok string) (Entity, error) {
	nick, rest, isPeer := strings.Cut(tok, "!")
	if !isPeer {
		return Server{Host: tok}, nil
	}
	if nick == "" || rest == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedOrigin, tok)
	}
	user, host, ok := strings.Cut(rest, "@")
	if !ok || user == "" || host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedOrigin, tok)
	}
	return Peer{Nick: nick, User: user, Host: host}, nil
}

func classify(ev ServerEvent) (Body, error) {
	switch ev.Command {
	case CmdPrivmsg:
		if ev.Target == "" {
			return nil, missing(ev.Command, "target")
		}
		return Privmsg{Text: ev.Body}, nil
	case CmdNotice:
		if ev.Target == "" {
			return nil, missing(ev.Command, "target")
		}
		return Notice{Text: ev.Body}, nil
	case CmdMode:
		if ev.Target == "" {
			return nil, missing(ev.Command, "target")
		}
		modes := ev.Aux
		if modes == "" {
			modes = ev.Body
		}
		return Mode{Modes: modes}, nil
	case CmdJoin:
		channel := ev.Target
		if channel == "" {
			channel = ev.Body
		}
		if channel == "" {
			return nil, missing(ev.Command, "channel")
		}
		return Join{Channel: channel}, nil
	case CmdPart:
		if ev.Target == "" {
			return nil, missing(ev.Command, "channel")
		}
		return Part{Reason: ev.Body}, nil
	case CmdQuit:
		return Quit{Reason: ev.Body}, nil
	case CmdNick:
		nick := ev.Target
		if nick == "" {
			nick = ev.Body
		}
		if nick == "" {
			return nil, missing(ev.Command, "nickname")
		}
		return NickChange{Nick: nick}, nil
	case CmdKick:
		if ev.Target == "" || len(ev.Params) == 0 {
			return nil, missing(ev.Command, "channel or user")
		}
		return Kick{User: ev.Params[0], Reason: ev.Body}, nil
	case CmdTopic:
		if ev.Target == "" {
			return nil, missing(ev.Command, "channel")
		}
		return Topic{Text: ev.Body}, nil
	}

	if !isDigits(ev.Command) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, ev.Command)
	}
	code, err := strconv.ParseUint(ev.Command, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNumericOutOfRange, ev.Command)
	}
	if ev.Target == "" {
		return nil, missing(ev.Command, "target")
	}
	return Numeric{Code: uint16(code), Text: ev.Body}, nil
}

func parseUnprefixed(content []byte, now time.Time) (Message, error) {
	cmd, rest, _ := bytes.Cut(content, []byte(" "))
	if !strings.EqualFold(string(cmd), CmdPing) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLine, cmd)
	}
	token := bytes.TrimSpace(rest)
	token = bytes.TrimPrefix(token, []byte{prefixSigil})
	return KeepAlive{Token: string(token), Time: now}, nil
}

func missing(command, what string) error {
	return fmt.Errorf("%w: %s without %s", ErrMissingToken, command, what)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
