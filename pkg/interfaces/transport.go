// pkg/interfaces/transport.go
package interfaces

import (
	"errors"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrSecurity         = errors.New("address rejected by security policy")
	ErrBadURL           = errors.New("malformed socket address")
	ErrNotOpen          = errors.New("socket is not open")
	ErrInvalidUTF8      = errors.New("message is not valid utf-8")
	ErrBufferFull       = errors.New("send buffer full")
	ErrBadReason        = errors.New("invalid close reason")
	ErrBadCode          = errors.New("invalid close code")
)

// ReadyState mirrors the numeric readyState of a browser WebSocket.
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseEvent is reported exactly once per socket, as its last event.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

// Listeners are installed by Dial before any network activity starts.
// OnError receives the readiness the socket had when the error fired.
type Listeners struct {
	OnOpen    func()
	OnMessage func(data string)
	OnError   func(err error, rs ReadyState)
	OnClose   func(ev CloseEvent)
}

type Socket interface {
	URL() string
	ReadyState() ReadyState
	Send(message string) error
	Close(code int, reason string) error
	BufferedAmount() int
}

type Dialer interface {
	// Dial validates url synchronously and connects in the background.
	// Completion is reported through l.
	Dial(url string, l Listeners) (Socket, error)
	ProtocolType() string
}
