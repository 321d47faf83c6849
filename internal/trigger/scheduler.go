// Package trigger starts pipeline runs on a cron schedule and on NATS "object arrived"
// messages. Both sources feed a single Runner.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"

	"github.com/tiercycle/tiercycle/pkg/errors"
)

// Config selects trigger sources. Either may be left empty.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor such as
	// "@every 15m".
	Schedule string     `yaml:"schedule"`
	NATS     NATSConfig `yaml:"nats"`
}

// NATSConfig subscribes to object-arrival notifications.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`

	// Queue makes replicas share one subscription so each message triggers one replica.
	Queue string `yaml:"queue"`
}

// Validate parses the schedule and checks the NATS subject.
func (c Config) Validate() error {
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return errors.NewError(errors.ErrCodeConfigValidation, "invalid trigger schedule "+c.Schedule).
				WithComponent("trigger").
				WithCause(err)
		}
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.NewError(errors.ErrCodeConfigValidation, "trigger nats subject is required with a url").
			WithComponent("trigger")
	}
	return nil
}

// Enabled reports whether any source is configured.
func (c Config) Enabled() bool {
	return c.Schedule != "" || c.NATS.URL != ""
}

// Scheduler owns the cron and NATS sources.
type Scheduler struct {
	cron   *cron.Cron
	conn   *nats.Conn
	sub    *nats.Subscription
	runner *Runner
	logger *slog.Logger
}

// Start wires the configured sources to runner.
func Start(cfg Config, runner *Runner, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{runner: runner, logger: logger.With("component", "trigger")}

	if cfg.Schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.Schedule, func() { runner.Trigger(SourceCron) }); err != nil {
			return nil, errors.NewError(errors.ErrCodeConfigValidation, "invalid trigger schedule").
				WithComponent("trigger").
				WithCause(err)
		}
		s.cron.Start()
		s.logger.Info("cron trigger started", "schedule", cfg.Schedule)
	}

	if cfg.NATS.URL != "" {
		if err := s.subscribe(cfg.NATS); err != nil {
			s.Stop(context.Background())
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) subscribe(cfg NATSConfig) error {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("tiercycle-trigger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.Transient("connect to NATS at "+cfg.URL, err).WithComponent("trigger")
	}
	s.conn = nc

	if cfg.Queue != "" {
		s.sub, err = nc.QueueSubscribe(cfg.Subject, cfg.Queue, s.handleMessage)
	} else {
		s.sub, err = nc.Subscribe(cfg.Subject, s.handleMessage)
	}
	if err != nil {
		return errors.Transient("subscribe to "+cfg.Subject, err).WithComponent("trigger")
	}
	s.logger.Info("NATS trigger subscribed", "subject", cfg.Subject, "queue", cfg.Queue)
	return nil
}

func (s *Scheduler) handleMessage(msg *nats.Msg) {
	s.logger.Debug("object arrival notification", "subject", msg.Subject, "bytes", len(msg.Data))
	s.runner.Trigger(SourceNATS)
}

// Stop halts the cron scheduler, drains the NATS subscription and waits for running cron
// jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
		}
	}
}
