// Package service runs one engine per configured endpoint. Workers share
// nothing; a failing worker never stops its siblings.
package service

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ircctl/internal/auth"
	"github.com/danmuck/ircctl/internal/bot"
	"github.com/danmuck/ircctl/internal/config"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/observability"
	"github.com/danmuck/ircctl/internal/protocol/frame"
	"github.com/danmuck/ircctl/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrRestartsExhausted = errors.New("service: restart attempts exhausted")

// DialFunc opens the transport for one endpoint.
type DialFunc func(ctx context.Context, target session.Target, cfg session.Config) (engine.Transport, error)

func dialSession(ctx context.Context, target session.Target, cfg session.Config) (engine.Transport, error) {
	conn, err := session.Dial(ctx, target, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Service struct {
	cfg  config.Config
	dial DialFunc
}

func New(cfg config.Config) *Service {
	return &Service{cfg: cfg, dial: dialSession}
}

// WithDialer replaces the transport dialer, e.g. to route through a proxy.
func (s *Service) WithDialer(dial DialFunc) *Service {
	s.dial = dial
	return s
}

// RunUntilSignal runs until SIGINT or SIGTERM.
func (s *Service) RunUntilSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run starts every endpoint and waits for all of them. It returns the first
// worker failure; cancellation is not a failure.
func (s *Service) Run(ctx context.Context) error {
	endpoints := s.cfg.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("%w: no endpoints", config.ErrInvalidConfig)
	}
	var g errgroup.Group
	for _, ep := range endpoints {
		g.Go(func() error {
			return s.runWorker(ctx, ep)
		})
	}
	return g.Wait()
}

func (s *Service) runWorker(ctx context.Context, ep config.Endpoint) error {
	secret := auth.NewSharedSecret(ep.AdminSecret)
	defer secret.Destroy()

	logger := log.Logger.With().Str("endpoint", ep.Name()).Logger()
	backoff := session.NewBackoff(ep.Transport.WithDefaults().Backoff, time.Now().UnixNano())
	for {
		identified, err := s.runOnce(ctx, ep, secret)
		if ctx.Err() != nil {
			return nil
		}
		if !s.cfg.Supervisor.Restart {
			return fmt.Errorf("%s: %w", ep.Name(), err)
		}
		if identified {
			backoff.Reset()
		}
		limit := s.cfg.Supervisor.MaxAttempts
		if limit > 0 && backoff.Attempts() >= limit {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRestartsExhausted, ep.Name(), backoff.Attempts(), err)
		}
		delay := backoff.Next()
		logger.Warn().
			Err(err).
			Int("attempt", backoff.Attempts()).
			Dur("delay", delay).
			Msg("service.restart")
		if err := wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// runOnce dials and runs one engine to completion. identified reports whether
// the handshake was sent before it ended.
func (s *Service) runOnce(ctx context.Context, ep config.Endpoint, secret auth.Validator) (bool, error) {
	runID := uuid.NewString()
	logger := observability.EndpointLogger(ep.Name(), runID)

	logger.Info().Str("target", ep.Target.String()).Msg("service.dial")
	conn, err := s.dial(ctx, ep.Target, ep.Transport)
	if err != nil {
		logDialFailure(logger, ep, err)
		return false, err
	}
	if sc, ok := conn.(*session.Conn); ok {
		logger.Info().Stringer("remote", sc.RemoteAddr()).Bool("secure", sc.Secure()).Msg("service.connected")
	}

	b := bot.New(bot.Config{
		Channels: ep.Channels,
		Prefix:   ep.CommandPrefix,
		Secret:   secret,
		Logger:   logger,
	})
	eng := engine.New(engine.Config{
		Endpoint:    ep.Name(),
		Identity:    ep.Identity,
		QuitMessage: ep.QuitMessage,
		Limits:      frame.DefaultLimits(),
		Logger:      logger,
	}, conn, b)

	err = eng.Run(ctx)
	return eng.State().Identified, err
}

func logDialFailure(logger zerolog.Logger, ep config.Endpoint, err error) {
	phase := "unknown"
	var dialErr *session.DialError
	if errors.As(err, &dialErr) {
		phase = string(dialErr.Phase)
	}
	observability.RecordDialFailure(ep.Name(), phase)
	logger.Error().Err(err).Str("phase", phase).Msg("service.dial.failed")
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
