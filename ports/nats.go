package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/lisuiheng/wsbridge/core"
)

var _ Port = (*NATS)(nil)

// NATS takes commands from one subject and publishes results on another.
type NATS struct {
	conn   *nats.Conn
	config core.NATSConfig
	logger *slog.Logger
}

func DialNATS(cfg core.NATSConfig, log *slog.Logger) (*NATS, error) {
	if cfg.CommandSubject == "" || cfg.ResultSubject == "" {
		return nil, errors.New("nats command and result subjects are required")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("wsbridge"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("Connected to NATS", "url", nc.ConnectedUrl())

	return &NATS{conn: nc, config: cfg, logger: log}, nil
}

func (p *NATS) Name() string { return "nats" }

func (p *NATS) Serve(ctx context.Context, b *core.Bridge) error {
	sub, err := p.conn.Subscribe(p.config.CommandSubject, func(msg *nats.Msg) {
		var cmd core.Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			p.logger.Warn("Skipping malformed command", "subject", msg.Subject, "error", err)
			return
		}
		if err := b.Handle(cmd); err != nil {
			p.logger.Debug("Command not accepted", "tag", cmd.Tag, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.config.CommandSubject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Error("Failed to unsubscribe", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-b.Results():
			if !ok {
				return nil
			}
			data, err := json.Marshal(r)
			if err != nil {
				p.logger.Error("Failed to marshal result", "tag", r.Tag, "error", err)
				continue
			}
			if err := p.conn.Publish(p.config.ResultSubject, data); err != nil {
				p.logger.Error("Failed to publish result", "tag", r.Tag, "error", err)
			}
		}
	}
}

func (p *NATS) Close() error {
	return p.conn.Drain()
}
