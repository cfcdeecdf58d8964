package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ircctl/internal/observability"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/danmuck/ircctl/internal/protocol/frame"
	"github.com/rs/zerolog"
)

var (
	ErrRemoteClosed   = errors.New("engine: remote closed connection")
	ErrTransportRead  = errors.New("engine: transport read failed")
	ErrTransportWrite = errors.New("engine: transport write failed")
)

const defaultReadBufferSize = 4096

// Transport is the duplex byte stream an engine owns. It is closed when Run
// returns.
type Transport interface {
	io.ReadWriteCloser
}

// Agent reacts to server events. It is called synchronously from Run and may
// push any number of jobs; the engine drains at most one per iteration.
type Agent interface {
	HandleMessage(ev protocol.ServerEvent, st State, q Pusher)
}

// AgentFunc adapts a function into an Agent.
type AgentFunc func(ev protocol.ServerEvent, st State, q Pusher)

func (f AgentFunc) HandleMessage(ev protocol.ServerEvent, st State, q Pusher) {
	f(ev, st, q)
}

type Config struct {
	// Endpoint labels logs and metrics, e.g. "irc.example.net:6697".
	Endpoint string
	Identity Identity
	// QuitMessage is sent best-effort when Run is cancelled.
	QuitMessage string
	Limits      frame.Limits
	// ReadBufferSize is the size of each transport read. Defaults to 4096.
	ReadBufferSize int
	Logger         zerolog.Logger
	// Now stamps parsed messages. Defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	cfg       Config
	transport Transport
	agent     Agent
	log       zerolog.Logger

	machine *machine
	queue   *Queue
	framer  *frame.Framer

	writeMu    sync.Mutex
	identified atomic.Bool
}

func New(cfg Config, transport Transport, agent Agent) *Engine {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if agent == nil {
		agent = AgentFunc(func(protocol.ServerEvent, State, Pusher) {})
	}
	return &Engine{
		cfg:       cfg,
		transport: transport,
		agent:     agent,
		log:       cfg.Logger.With().Str("component", "engine").Logger(),
		machine:   newMachine(cfg.Identity),
		queue:     NewQueue(),
		framer:    frame.New(cfg.Limits),
	}
}

// State returns a copy of the current connection state. Call it from the
// goroutine running Run, or after Run returns.
func (e *Engine) State() State {
	return e.machine.snapshot()
}

// Queue exposes the job queue, e.g. to seed jobs before Run.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Run reads until the transport fails or ctx is cancelled. Each iteration
// performs one blocking read, processes every complete line, then drains at
// most one job. On cancellation it returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, e.shutdown)
	defer func() {
		if stop() {
			_ = e.transport.Close()
		}
	}()

	e.log.Info().Str("nick", e.cfg.Identity.Nick).Msg("engine.start")
	buf := make([]byte, e.cfg.ReadBufferSize)
	for {
		n, readErr := e.transport.Read(buf)
		if n > 0 {
			if err := e.process(buf[:n]); err != nil {
				return e.exit(ctx, err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return e.exit(ctx, ErrRemoteClosed)
			}
			return e.exit(ctx, fmt.Errorf("%w: %w", ErrTransportRead, readErr))
		}
		if err := e.drainOne(); err != nil {
			return e.exit(ctx, err)
		}
	}
}

// shutdown runs once ctx is done: a best-effort QUIT, then close to unblock
// the pending read. A write already in flight wins and QUIT is skipped.
func (e *Engine) shutdown() {
	if e.identified.Load() && e.writeMu.TryLock() {
		if err := protocol.WriteCommand(e.transport, protocol.CmdQuit, quitArgument(e.cfg.QuitMessage)); err == nil {
			observability.RecordCommandSent(e.cfg.Endpoint, protocol.CmdQuit)
		}
		e.writeMu.Unlock()
	}
	_ = e.transport.Close()
}

func quitArgument(reason string) string {
	if reason == "" {
		return ""
	}
	return protocol.Trailing(clean(reason))
}

func (e *Engine) exit(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		observability.RecordEngineExit(e.cfg.Endpoint, "cancelled")
		e.log.Info().Msg("engine.stop")
		return ctxErr
	}
	reason := "read_error"
	switch {
	case errors.Is(err, ErrRemoteClosed):
		reason = "remote_closed"
	case errors.Is(err, ErrTransportWrite):
		reason = "write_error"
	}
	observability.RecordEngineExit(e.cfg.Endpoint, reason)
	e.log.Warn().Err(err).Str("reason", reason).Msg("engine.exit")
	return err
}

func (e *Engine) process(chunk []byte) error {
	for line := range e.framer.Feed(chunk) {
		if err := e.handleLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleLine(line []byte) error {
	observability.RecordLineReceived(e.cfg.Endpoint)
	e.log.Trace().Bytes("line", line).Msg("engine.recv")
	msg, err := protocol.Parse(line, e.cfg.Now())
	if err != nil {
		reason := protocol.DropReason(err)
		observability.RecordLineDropped(e.cfg.Endpoint, reason)
		e.log.Debug().Str("reason", reason).Bytes("line", line).Msg("engine.drop")
		return nil
	}

	switch m := msg.(type) {
	case protocol.KeepAlive:
		return e.send(e.machine.keepAlive(m))
	case protocol.ServerEvent:
		wasIdentified := e.machine.state.Identified
		for _, out := range e.machine.observe(m) {
			if err := e.send(out); err != nil {
				return err
			}
		}
		if !wasIdentified && e.machine.state.Identified {
			e.identified.Store(true)
			e.log.Info().Str("server", e.machine.state.ServerAddress).Msg("engine.identified")
		}
		e.agent.HandleMessage(m, e.machine.snapshot(), e.queue)
		observability.SetJobsQueued(e.cfg.Endpoint, e.queue.Len())
	}
	return nil
}

// drainOne sends the oldest job. Jobs wait in the queue until the handshake
// has been sent.
func (e *Engine) drainOne() error {
	if !e.machine.state.Identified {
		return nil
	}
	job, ok := e.queue.DrainOne()
	if !ok {
		return nil
	}
	observability.SetJobsQueued(e.cfg.Endpoint, e.queue.Len())
	out, err := Translate(job, e.machine.state.Nick)
	if err != nil {
		e.log.Warn().Err(err).Msg("engine.job.dropped")
		return nil
	}
	observability.RecordJobDrained(e.cfg.Endpoint, job.Kind())
	return e.send(out)
}

func (e *Engine) send(out Outbound) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := protocol.WriteCommand(e.transport, out.Command, out.Argument); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransportWrite, out.Command, err)
	}
	observability.RecordCommandSent(e.cfg.Endpoint, out.Command)
	e.log.Debug().Str("command", out.Command).Str("arg", out.Argument).Msg("engine.send")
	return nil
}
