package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

type fakeSocket struct {
	mu         sync.Mutex
	url        string
	state      interfaces.ReadyState
	l          interfaces.Listeners
	sent       []string
	sendErr    error
	closeErr   error
	closeCalls int
	closeCode  int
	reason     string
	buffered   int
}

func (s *fakeSocket) URL() string { return s.url }

func (s *fakeSocket) ReadyState() interfaces.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSocket) Send(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != interfaces.StateOpen {
		return interfaces.ErrNotOpen
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, message)
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closeErr != nil {
		return s.closeErr
	}
	if s.state == interfaces.StateClosing || s.state == interfaces.StateClosed {
		return nil
	}
	s.state = interfaces.StateClosing
	s.closeCode = code
	s.reason = reason
	return nil
}

func (s *fakeSocket) BufferedAmount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func (s *fakeSocket) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSocket) set(fn func(s *fakeSocket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// transport side events

func (s *fakeSocket) open() {
	s.set(func(s *fakeSocket) { s.state = interfaces.StateOpen })
	s.l.OnOpen()
}

func (s *fakeSocket) message(data string) {
	s.l.OnMessage(data)
}

func (s *fakeSocket) fail(err error) {
	s.l.OnError(err, s.ReadyState())
}

func (s *fakeSocket) closed(ev interfaces.CloseEvent) {
	s.set(func(s *fakeSocket) { s.state = interfaces.StateClosed })
	s.l.OnClose(ev)
}

type fakeDialer struct {
	mu      sync.Mutex
	dialErr error
	dialed  chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSocket, 16)}
}

func (d *fakeDialer) ProtocolType() string { return "fake" }

func (d *fakeDialer) Dial(url string, l interfaces.Listeners) (interfaces.Socket, error) {
	d.mu.Lock()
	err := d.dialErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := &fakeSocket{url: url, state: interfaces.StateConnecting, l: l}
	d.dialed <- s
	return s, nil
}

func (d *fakeDialer) failWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T) (*Bridge, *fakeDialer) {
	t.Helper()

	d := newFakeDialer()
	b, err := NewBridge(DefaultConfig(), d, discardLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	return b, d
}

func handle(t *testing.T, b *Bridge, cmd Command) {
	t.Helper()
	if err := b.Handle(cmd); err != nil {
		t.Fatalf("handle %s: %v", cmd.Tag, err)
	}
}

func nextResult(t *testing.T, b *Bridge) Result {
	t.Helper()
	select {
	case r, ok := <-b.Results():
		if !ok {
			t.Fatal("results closed")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result{}
}

func dialed(t *testing.T, d *fakeDialer) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.dialed:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
	}
	return nil
}

// openSocket drives a socket to Open and returns its handle.
func openSocket(t *testing.T, b *Bridge, d *fakeDialer, url string) (*fakeSocket, SocketHandle) {
	t.Helper()
	handle(t, b, OpenCommand(url))
	s := dialed(t, d)
	s.open()

	r := nextResult(t, b)
	if r.Tag != TagGoodOpen {
		t.Fatalf("expected %s, got %s", TagGoodOpen, r.Tag)
	}
	return s, r.Payload.(OpenResult).Socket
}

// flush waits until every command queued so far has been handled and
// fails if any of them produced a result.
func flush(t *testing.T, b *Bridge) {
	t.Helper()
	if err := b.BytesQueued(SocketHandle{}); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if r := nextResult(t, b); r.Tag != TagBytesQueued {
		t.Fatalf("unexpected result %s: %+v", r.Tag, r.Payload)
	}
}
