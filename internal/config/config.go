package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultPlainPort  uint16 = 6667
	DefaultSecurePort uint16 = 6697
	DefaultPrefix            = "!"
	DefaultQuit              = "ircctl shutting down"
)

// Config is the resolved, validated process configuration.
type Config struct {
	Identity      engine.Identity
	CommandPrefix string
	AdminSecret   string
	QuitMessage   string
	Transport     session.Config
	Supervisor    Supervisor
	Servers       []Server
}

// Supervisor controls worker restarts. Restarts are off unless enabled.
type Supervisor struct {
	Restart bool
	// MaxAttempts bounds consecutive restarts; zero means unlimited.
	MaxAttempts int
}

// Server is one [[servers]] entry. Empty identity fields inherit the
// top-level identity.
type Server struct {
	Host     string
	Port     uint16
	Secure   bool
	Channels []string
	Nick     string
	AltNick  string
	Username string
	Realname string
	TLS      session.TLSConfig
}

// Endpoint is everything one engine needs, resolved from a Server entry.
type Endpoint struct {
	Target        session.Target
	Channels      []string
	Identity      engine.Identity
	CommandPrefix byte
	AdminSecret   string
	QuitMessage   string
	Transport     session.Config
}

func (e Endpoint) Name() string {
	return e.Target.Address()
}

type fileConfig struct {
	Nick          string            `toml:"nick"`
	AltNick       string            `toml:"alt_nick"`
	Username      string            `toml:"username"`
	Realname      string            `toml:"realname"`
	CommandPrefix string            `toml:"command_prefix"`
	AdminSecret   string            `toml:"admin_secret"`
	QuitMessage   string            `toml:"quit_message"`
	Transport     transportSection  `toml:"transport"`
	Supervisor    supervisorSection `toml:"supervisor"`
	Servers       []serverSection   `toml:"servers"`
}

type transportSection struct {
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
}

type supervisorSection struct {
	Restart      bool   `toml:"restart"`
	MaxAttempts  int    `toml:"max_attempts"`
	BackoffStart string `toml:"backoff_initial"`
	BackoffMax   string `toml:"backoff_max"`
}

type serverSection struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	Secure             bool     `toml:"secure"`
	Channels           []string `toml:"channels"`
	Nick               string   `toml:"nick"`
	AltNick            string   `toml:"alt_nick"`
	Username           string   `toml:"username"`
	Realname           string   `toml:"realname"`
	ServerName         string   `toml:"tls_server_name"`
	CAFile             string   `toml:"tls_ca_file"`
	CertFile           string   `toml:"tls_cert_file"`
	KeyFile            string   `toml:"tls_key_file"`
	InsecureSkipVerify bool     `toml:"tls_insecure_skip_verify"`
}

// envOverrides are applied after the file so secrets can stay out of it.
type envOverrides struct {
	AdminSecret string `env:"IRCCTL_ADMIN_SECRET"`
	Nick        string `env:"IRCCTL_NICK"`
	Username    string `env:"IRCCTL_USERNAME"`
	Realname    string `env:"IRCCTL_REALNAME"`
}

// Load reads path, applies environment overrides and defaults, and validates.
func Load(path string) (Config, error) {
	return load(path, env.Options{})
}

func load(path string, envOpts env.Options) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	cfg, err := fromFile(raw, meta)
	if err != nil {
		return Config{}, err
	}

	var over envOverrides
	if err := env.ParseWithOptions(&over, envOpts); err != nil {
		return Config{}, fmt.Errorf("config env parse failed: %w", err)
	}
	applyEnv(&cfg, over)
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromFile(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Config{
		Identity: engine.Identity{
			Nick:     strings.TrimSpace(raw.Nick),
			AltNick:  strings.TrimSpace(raw.AltNick),
			Username: strings.TrimSpace(raw.Username),
			Realname: strings.TrimSpace(raw.Realname),
		},
		CommandPrefix: raw.CommandPrefix,
		AdminSecret:   raw.AdminSecret,
		QuitMessage:   raw.QuitMessage,
		Transport:     session.DefaultConfig(),
		Supervisor: Supervisor{
			Restart:     raw.Supervisor.Restart,
			MaxAttempts: raw.Supervisor.MaxAttempts,
		},
	}
	if !meta.IsDefined("command_prefix") {
		cfg.CommandPrefix = DefaultPrefix
	}
	if !meta.IsDefined("quit_message") {
		cfg.QuitMessage = DefaultQuit
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.Transport.ConnectTimeout, &cfg.Transport.ConnectTimeout},
		{"handshake_timeout", raw.Transport.HandshakeTimeout, &cfg.Transport.HandshakeTimeout},
		{"read_timeout", raw.Transport.ReadTimeout, &cfg.Transport.ReadTimeout},
		{"write_timeout", raw.Transport.WriteTimeout, &cfg.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("transport", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse transport.%s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("supervisor", "backoff_initial") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Supervisor.BackoffStart))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse supervisor.backoff_initial: %v", ErrInvalidConfig, err)
		}
		cfg.Transport.Backoff.InitialDelay = v
	}
	if meta.IsDefined("supervisor", "backoff_max") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Supervisor.BackoffMax))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse supervisor.backoff_max: %v", ErrInvalidConfig, err)
		}
		cfg.Transport.Backoff.MaxDelay = v
	}

	cfg.Servers = make([]Server, 0, len(raw.Servers))
	for i, s := range raw.Servers {
		if s.Port < 0 || s.Port > 65535 {
			return Config{}, fmt.Errorf("%w: servers[%d] invalid: port %d out of range", ErrInvalidConfig, i, s.Port)
		}
		cfg.Servers = append(cfg.Servers, Server{
			Host:     strings.TrimSpace(s.Host),
			Port:     uint16(s.Port),
			Secure:   s.Secure,
			Channels: normalizeChannels(s.Channels),
			Nick:     strings.TrimSpace(s.Nick),
			AltNick:  strings.TrimSpace(s.AltNick),
			Username: strings.TrimSpace(s.Username),
			Realname: strings.TrimSpace(s.Realname),
			TLS: session.TLSConfig{
				ServerName:         strings.TrimSpace(s.ServerName),
				CAFile:             strings.TrimSpace(s.CAFile),
				CertFile:           strings.TrimSpace(s.CertFile),
				KeyFile:            strings.TrimSpace(s.KeyFile),
				InsecureSkipVerify: s.InsecureSkipVerify,
			},
		})
	}
	return cfg, nil
}

func applyEnv(cfg *Config, over envOverrides) {
	if over.AdminSecret != "" {
		cfg.AdminSecret = over.AdminSecret
	}
	if v := strings.TrimSpace(over.Nick); v != "" {
		cfg.Identity.Nick = v
	}
	if v := strings.TrimSpace(over.Username); v != "" {
		cfg.Identity.Username = v
	}
	if v := strings.TrimSpace(over.Realname); v != "" {
		cfg.Identity.Realname = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.Identity = identityDefaults(cfg.Identity)
	for i := range cfg.Servers {
		if cfg.Servers[i].Port == 0 {
			cfg.Servers[i].Port = DefaultPlainPort
			if cfg.Servers[i].Secure {
				cfg.Servers[i].Port = DefaultSecurePort
			}
		}
	}
}

func identityDefaults(id engine.Identity) engine.Identity {
	if id.Nick == "" {
		return id
	}
	if id.AltNick == "" {
		id.AltNick = id.Nick + "_"
	}
	if id.Username == "" {
		id.Username = id.Nick
	}
	if id.Realname == "" {
		id.Realname = id.Nick
	}
	return id
}

// Endpoints resolves one Endpoint per server, in file order.
func (c Config) Endpoints() []Endpoint {
	var prefix byte
	if len(c.CommandPrefix) > 0 {
		prefix = c.CommandPrefix[0]
	}
	out := make([]Endpoint, 0, len(c.Servers))
	for _, s := range c.Servers {
		id := c.Identity
		if s.Nick != "" {
			id.Nick = s.Nick
			id.AltNick = s.Nick + "_"
		}
		if s.AltNick != "" {
			id.AltNick = s.AltNick
		}
		if s.Username != "" {
			id.Username = s.Username
		}
		if s.Realname != "" {
			id.Realname = s.Realname
		}

		transport := c.Transport
		transport.TLS = s.TLS
		out = append(out, Endpoint{
			Target:        session.Target{Host: s.Host, Port: s.Port, Secure: s.Secure},
			Channels:      append([]string(nil), s.Channels...),
			Identity:      id,
			CommandPrefix: prefix,
			AdminSecret:   c.AdminSecret,
			QuitMessage:   c.QuitMessage,
			Transport:     transport,
		})
	}
	return out
}

// Validate reports the first problem found. Errors wrap ErrInvalidConfig.
func Validate(cfg Config) error {
	if err := validateIdentity(cfg.Identity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.AdminSecret == "" {
		return fmt.Errorf("%w: admin_secret is required (or set IRCCTL_ADMIN_SECRET)", ErrInvalidConfig)
	}
	if len(cfg.CommandPrefix) != 1 || cfg.CommandPrefix == " " {
		return fmt.Errorf("%w: command_prefix must be exactly one non-space byte, got %q", ErrInvalidConfig, cfg.CommandPrefix)
	}
	if hasLineBreak(cfg.QuitMessage) {
		return fmt.Errorf("%w: quit_message must be a single line", ErrInvalidConfig)
	}
	if cfg.Supervisor.MaxAttempts < 0 {
		return fmt.Errorf("%w: supervisor.max_attempts must not be negative", ErrInvalidConfig)
	}
	if b := cfg.Transport.Backoff; b.InitialDelay <= 0 {
		return fmt.Errorf("%w: supervisor.backoff_initial must be positive, got %v", ErrInvalidConfig, b.InitialDelay)
	} else if b.MaxDelay > 0 && b.MaxDelay < b.InitialDelay {
		return fmt.Errorf("%w: supervisor.backoff_max %v is below backoff_initial %v", ErrInvalidConfig, b.MaxDelay, b.InitialDelay)
	}
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("%w: at least one [[servers]] entry is required", ErrInvalidConfig)
	}
	for i, s := range cfg.Servers {
		if err := ValidateServer(s); err != nil {
			return fmt.Errorf("%w: servers[%d] invalid: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

func ValidateServer(s Server) error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if strings.ContainsAny(s.Host, " /") {
		return fmt.Errorf("host %q is not a hostname", s.Host)
	}
	if s.Port == 0 {
		return fmt.Errorf("port is required")
	}
	for _, ch := range s.Channels {
		if strings.ContainsAny(ch, " ,\r\n\a") {
			return fmt.Errorf("channel %q contains a forbidden character", ch)
		}
	}
	for _, nick := range []string{s.Nick, s.AltNick} {
		if nick == "" {
			continue
		}
		if err := validateNick(nick); err != nil {
			return err
		}
	}
	if !s.Secure && (s.TLS.CAFile != "" || s.TLS.CertFile != "" || s.TLS.InsecureSkipVerify) {
		return fmt.Errorf("tls options require secure = true")
	}
	return session.Config{TLS: s.TLS}.ValidateClientTransport()
}

func validateIdentity(id engine.Identity) error {
	if err := validateNick(id.Nick); err != nil {
		return err
	}
	if id.AltNick != "" {
		if err := validateNick(id.AltNick); err != nil {
			return fmt.Errorf("alt_nick: %w", err)
		}
	}
	if strings.ContainsAny(id.Username, " \r\n") {
		return fmt.Errorf("username %q must be a single word", id.Username)
	}
	if hasLineBreak(id.Realname) {
		return fmt.Errorf("realname must be a single line")
	}
	return nil
}

func validateNick(nick string) error {
	if nick == "" {
		return fmt.Errorf("nick is required")
	}
	if strings.ContainsAny(nick, " ,*?!@:\r\n") || strings.HasPrefix(nick, "#") {
		return fmt.Errorf("nick %q contains a forbidden character", nick)
	}
	return nil
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

func normalizeChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ch := range in {
		v := strings.TrimSpace(ch)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
