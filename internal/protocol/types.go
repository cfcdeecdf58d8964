package protocol

import "time"

// Message is one successfully parsed inbound line: a ServerEvent or a KeepAlive.
type Message interface {
	isMessage()
}

// Entity is the origin of a ServerEvent: a Server or a Peer.
type Entity interface {
	isEntity()
	// Name is the server name or the peer nickname.
	Name() string
}

// Server is a named host origin, e.g. ":irc.example.net".
type Server struct {
	Host string
}

func (Server) isEntity()        {}
func (s Server) Name() string   { return s.Host }
func (s Server) String() string { return s.Host }

// Peer is a user origin, "nick!user@host". Peers are comparable; two values
// are the same identity iff all three fields match.
type Peer struct {
	Nick string
	User string
	Host string
}

func (Peer) isEntity()      {}
func (p Peer) Name() string { return p.Nick }
func (p Peer) String() string {
	return p.Nick + "!" + p.User + "@" + p.Host
}

// ServerEvent is a prefixed line: ":origin COMMAND target params... :body".
type ServerEvent struct {
	Origin  Entity
	Command string
	Target  string
	// Params holds metadata tokens after the target.
	Params []string
	// Aux is Params concatenated without separators.
	Aux  string
	Body string
	Kind Body
	Raw  []byte
	Time time.Time
}

func (ServerEvent) isMessage() {}

// Peer returns the origin as a Peer when the event came from a user.
func (e ServerEvent) Peer() (Peer, bool) {
	p, ok := e.Origin.(Peer)
	return p, ok
}

// FromServer reports whether the origin is a Server entity.
func (e ServerEvent) FromServer() bool {
	_, ok := e.Origin.(Server)
	return ok
}

// KeepAlive is an unprefixed "PING :token" challenge.
type KeepAlive struct {
	Token string
	Time  time.Time
}

func (KeepAlive) isMessage() {}

// Body is the command-specific payload of a ServerEvent.
type Body interface {
	isBody()
}

type Privmsg struct {
	Text string
}

type Notice struct {
	Text string
}

type Mode struct {
	Modes string
}

// Numeric is a three-digit server reply such as 001 or 433.
type Numeric struct {
	Code uint16
	Text string
}

type Join struct {
	Channel string
}

type Part struct {
	Reason string
}

type Quit struct {
	Reason string
}

type NickChange struct {
	Nick string
}

type Kick struct {
	User   string
	Reason string
}

type Topic struct {
	Text string
}

func (Privmsg) isBody()    {}
func (Notice) isBody()     {}
func (Mode) isBody()       {}
func (Numeric) isBody()    {}
func (Join) isBody()       {}
func (Part) isBody()       {}
func (Quit) isBody()       {}
func (NickChange) isBody() {}
func (Kick) isBody()       {}
func (Topic) isBody()      {}

// Numeric replies the engine and bot react to.
const (
	RplWelcome       uint16 = 1
	ErrNicknameInUse uint16 = 433
)
