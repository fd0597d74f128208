package core

import (
	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

const (
	TagGoodOpen    = "GoodOpen"
	TagBadOpen     = "BadOpen"
	TagError       = "error"
	TagClose       = "close"
	TagGoodSend    = "GoodSend"
	TagBadSend     = "BadSend"
	TagBytesQueued = "BytesQueued"
)

// Result is one outcome or event delivered to the caller. Inbound
// messages are tagged with the originating socket's url and carry the
// raw message string as payload.
type Result struct {
	Tag     string `json:"tag"`
	Payload any    `json:"payload"`
}

type OpenResult struct {
	URL    string       `json:"url"`
	Socket SocketHandle `json:"socket"`
}

// Failure is the payload of BadOpen and BadSend.
type Failure struct {
	URL   string    `json:"url"`
	Error ErrorKind `json:"error"`
}

type ErrorEvent struct {
	URL        string                `json:"url"`
	ReadyState interfaces.ReadyState `json:"readyState"`
}

type CloseResult struct {
	URL      string `json:"url"`
	Code     int    `json:"code"`
	Reason   string `json:"reason"`
	WasClean bool   `json:"wasClean"`
}

type SendResult struct {
	URL string `json:"url"`
}

// CloseFailure is the payload of BadReason and BadCode results.
type CloseFailure struct {
	URL string `json:"url"`
}

// URL reports which address r refers to, or "" when it names none.
func (r Result) URL() string {
	switch p := r.Payload.(type) {
	case OpenResult:
		return p.URL
	case Failure:
		return p.URL
	case ErrorEvent:
		return p.URL
	case CloseResult:
		return p.URL
	case SendResult:
		return p.URL
	case CloseFailure:
		return p.URL
	case string:
		return r.Tag
	}
	return ""
}
