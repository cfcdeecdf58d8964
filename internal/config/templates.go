package config

import (
	"fmt"
	"os"
)

// Template returns a commented example configuration.
func Template() string {
	return exampleTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(exampleTemplate), 0o600)
}

const exampleTemplate = `# ircctl configuration

nick = "ircctl"
# alt_nick = "ircctl_"        # tried when the nick is taken, then "_" is appended
# username = "ircctl"         # defaults to nick
# realname = "ircctl bot"     # defaults to nick
command_prefix = "!"
quit_message = "ircctl shutting down"

# Operators authenticate with "/msg <nick> !auth <secret>".
# Prefer IRCCTL_ADMIN_SECRET over storing the secret here.
admin_secret = "change-me"

[transport]
connect_timeout = "10s"
handshake_timeout = "10s"
write_timeout = "15s"
# read_timeout = "5m"         # unset: wait for the server indefinitely

[supervisor]
restart = false
max_attempts = 0              # 0 = unlimited when restart = true
backoff_initial = "2s"
backoff_max = "5m"

[[servers]]
host = "irc.libera.chat"
secure = true                 # port defaults to 6697, or 6667 when secure = false
channels = ["#ircctl"]

# [[servers]]
# host = "irc.example.net"
# port = 6697
# secure = true
# channels = ["#ops", "#dev"]
# nick = "ircctl-example"
# tls_ca_file = "/etc/ircctl/ca.pem"
# tls_cert_file = "/etc/ircctl/client.pem"
# tls_key_file = "/etc/ircctl/client.key"
`
