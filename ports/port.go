// Package ports carries the command/result protocol between a Bridge and
// the process that drives it.
package ports

import (
	"context"

	"github.com/lisuiheng/wsbridge/core"
)

// Port feeds commands into b and delivers its results until ctx is done
// or the bridge stops.
type Port interface {
	Serve(ctx context.Context, b *core.Bridge) error
	Name() string
}
