package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

// Bridge turns commands into socket operations and socket events into
// Results. Every command and every transport event runs on the single
// Run goroutine, which owns the Registry and is the only producer of
// Results.
type Bridge struct {
	config    Config
	dialer    interfaces.Dialer
	registry  *Registry
	inbox     chan func()
	results   chan Result
	closeChan chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	loopDone  chan struct{}
	logger    *slog.Logger
}

// NewBridge 创建一个新的桥接实例
func NewBridge(cfg Config, dialer interfaces.Dialer, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if dialer == nil {
		return nil, errors.New("dialer cannot be nil")
	}

	return &Bridge{
		config:    cfg,
		dialer:    dialer,
		registry:  NewRegistry(),
		inbox:     make(chan func(), max(cfg.Bridge.CommandBuffer, 0)),
		results:   make(chan Result, max(cfg.Bridge.ResultBuffer, 0)),
		closeChan: make(chan struct{}),
		loopDone:  make(chan struct{}),
		logger:    log.With("transport", dialer.ProtocolType()),
	}, nil
}

// Results is closed once Run returns.
func (b *Bridge) Results() <-chan Result {
	return b.results
}

func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Handle queues cmd for the event loop and returns immediately.
func (b *Bridge) Handle(cmd Command) error {
	return b.post(func() { b.dispatch(cmd) })
}

// BytesQueued asks for the number of bytes h has queued but not yet
// written. The answer arrives as a BytesQueued result.
func (b *Bridge) BytesQueued(h SocketHandle) error {
	return b.post(func() {
		n := 0
		if e, ok := b.registry.lookup(h.ID); ok {
			n = e.socket.BufferedAmount()
		}
		b.emit(Result{Tag: TagBytesQueued, Payload: n})
	})
}

// Run 启动桥接主循环
func (b *Bridge) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("bridge is already running")
	}
	defer close(b.loopDone)
	defer close(b.results)

	b.logger.Info("Starting bridge event loop")
	defer b.logger.Info("Bridge event loop stopped")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bridge")
			b.shutdown()
			return nil
		case <-b.closeChan:
			return nil
		case fn := <-b.inbox:
			fn()
		}
	}
}

// Close stops the event loop and asks every live socket to close.
func (b *Bridge) Close() error {
	b.logger.Info("Closing bridge", "live", b.registry.Len())
	b.shutdown()
	if b.started.Load() {
		<-b.loopDone
	}
	return nil
}

func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		close(b.closeChan)
		for _, e := range b.registry.entriesCopy() {
			if err := e.socket.Close(b.config.Bridge.CloseCode, "bridge closed"); err != nil {
				b.logger.Error("Failed to close socket", "id", e.handle.ID, "url", e.handle.URL, "error", err)
			}
		}
	})
}

func (b *Bridge) post(fn func()) error {
	select {
	case <-b.closeChan:
		return ErrBridgeClosed
	default:
	}

	select {
	case b.inbox <- fn:
		return nil
	case <-b.closeChan:
		return ErrBridgeClosed
	}
}

// emit is the only writer of b.results.
func (b *Bridge) emit(r Result) {
	select {
	case b.results <- r:
	case <-b.closeChan:
		b.logger.Debug("Dropping result after close", "tag", r.Tag)
	}
}
