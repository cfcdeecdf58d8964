package engine

import (
	"strings"

	"github.com/danmuck/ircctl/internal/protocol"
)

// State is the connection state visible to agents. Agents receive copies.
type State struct {
	Nick          string
	ServerAddress string
	Identified    bool
}

// Identity is what the engine announces during the handshake.
type Identity struct {
	Nick     string
	AltNick  string
	Username string
	Realname string
}

// Outbound is one command the engine must write.
type Outbound struct {
	Command  string
	Argument string
}

// machine owns State. It never writes; it returns the commands to send.
type machine struct {
	identity   Identity
	state      State
	welcomed   bool
	nickErrors int
}

func newMachine(id Identity) *machine {
	return &machine{identity: id, state: State{Nick: id.Nick}}
}

func (m *machine) snapshot() State {
	return m.state
}

// observe applies a ServerEvent. The first event from a server origin records
// its name and triggers NICK then USER; identification never regresses.
func (m *machine) observe(ev protocol.ServerEvent) []Outbound {
	if !m.state.Identified {
		if !ev.FromServer() {
			return nil
		}
		m.state.ServerAddress = ev.Origin.Name()
		m.state.Identified = true
		return m.announce()
	}
	switch body := ev.Kind.(type) {
	case protocol.NickChange:
		m.renamed(ev, body)
	case protocol.Numeric:
		return m.numeric(ev, body)
	}
	return nil
}

// renamed follows a NICK change the server applied to our own connection.
func (m *machine) renamed(ev protocol.ServerEvent, body protocol.NickChange) {
	peer, ok := ev.Peer()
	if !ok || !strings.EqualFold(peer.Nick, m.state.Nick) {
		return
	}
	m.state.Nick = body.Nick
}

func (m *machine) numeric(ev protocol.ServerEvent, num protocol.Numeric) []Outbound {
	if m.welcomed {
		return nil
	}
	switch num.Code {
	case protocol.RplWelcome:
		m.welcomed = true
		if ev.Target != "" && ev.Target != "*" {
			m.state.Nick = ev.Target
		}
	case protocol.ErrNicknameInUse:
		m.nickErrors++
		m.state.Nick = m.fallbackNick()
		return []Outbound{{Command: protocol.CmdNick, Argument: m.state.Nick}}
	}
	return nil
}

// keepAlive answers a PING in any state. Before a server name is known the
// challenge token is echoed in place of an empty address.
func (m *machine) keepAlive(ka protocol.KeepAlive) Outbound {
	addr := m.state.ServerAddress
	if addr == "" {
		addr = ka.Token
	}
	return Outbound{Command: protocol.CmdPong, Argument: addr}
}

func (m *machine) announce() []Outbound {
	return []Outbound{
		{Command: protocol.CmdNick, Argument: m.state.Nick},
		{Command: protocol.CmdUser, Argument: m.identity.Username + " 0 * " + protocol.Trailing(m.identity.Realname)},
	}
}

// fallbackNick tries AltNick first, then keeps appending "_".
func (m *machine) fallbackNick() string {
	alt := m.identity.AltNick
	if m.nickErrors == 1 && alt != "" && !strings.EqualFold(alt, m.state.Nick) {
		return alt
	}
	return m.state.Nick + "_"
}
