package protocol

import "io"

// Command names understood by Parse and emitted by Encode callers.
const (
	CmdNick    = "NICK"
	CmdUser    = "USER"
	CmdPing    = "PING"
	CmdPong    = "PONG"
	CmdJoin    = "JOIN"
	CmdPart    = "PART"
	CmdPrivmsg = "PRIVMSG"
	CmdNotice  = "NOTICE"
	CmdMode    = "MODE"
	CmdQuit    = "QUIT"
	CmdKick    = "KICK"
	CmdTopic   = "TOPIC"
)

// LineTerminator ends every inbound and outbound line.
const LineTerminator = "\r\n"

// Encode renders "<command> <argument>\r\n" verbatim, or "<command>\r\n" when
// argument is empty. It performs no escaping and no length limiting.
func Encode(command, argument string) []byte {
	n := len(command) + len(LineTerminator)
	if argument != "" {
		n += 1 + len(argument)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, command...)
	if argument != "" {
		buf = append(buf, ' ')
		buf = append(buf, argument...)
	}
	return append(buf, LineTerminator...)
}

// WriteCommand encodes one command and writes it to w in a single call.
func WriteCommand(w io.Writer, command, argument string) error {
	_, err := w.Write(Encode(command, argument))
	return err
}

// Trailing formats a final parameter that may contain spaces: ":text".
func Trailing(text string) string {
	return ":" + text
}
