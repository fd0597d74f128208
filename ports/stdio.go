package ports

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lisuiheng/wsbridge/core"
)

const maxLineSize = 1 << 20

var _ Port = (*Stdio)(nil)

// Stdio reads one JSON command per line from in and writes one JSON
// result per line to out.
type Stdio struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	// CloseOnEOF closes the bridge when in is exhausted.
	CloseOnEOF bool
}

func NewStdio(in io.Reader, out io.Writer, log *slog.Logger) *Stdio {
	return &Stdio{in: in, out: out, logger: log}
}

func (p *Stdio) Name() string { return "stdio" }

func (p *Stdio) Serve(ctx context.Context, b *core.Bridge) error {
	go func() {
		if err := p.readCommands(b); err != nil {
			p.logger.Error("Command reader stopped", "error", err)
		}
	}()

	enc := json.NewEncoder(p.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-b.Results():
			if !ok {
				return nil
			}
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		}
	}
}

func (p *Stdio) readCommands(b *core.Bridge) error {
	scanner := bufio.NewScanner(p.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd core.Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			p.logger.Warn("Skipping malformed command", "error", err, "raw", string(line))
			continue
		}
		if err := b.Handle(cmd); err != nil {
			if errors.Is(err, core.ErrBridgeClosed) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}

	p.logger.Info("Command stream ended")
	if p.CloseOnEOF {
		return b.Close()
	}
	return nil
}
