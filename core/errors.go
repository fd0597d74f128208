package core

import (
	"errors"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

var (
	ErrBridgeClosed = errors.New("bridge closed")
	ErrDuplicateID  = errors.New("socket id already in use")
	ErrBadCommand   = errors.New("malformed command")

	ErrUnsupportedTransport = errors.New("unsupported transport")
)

// ErrorKind is the closed set of failures reported to callers.
type ErrorKind string

const (
	BadSecurity ErrorKind = "BadSecurity"
	BadArgs     ErrorKind = "BadArgs"
	BadReason   ErrorKind = "BadReason"
	BadCode     ErrorKind = "BadCode"
	NotOpen     ErrorKind = "NotOpen"
	BadString   ErrorKind = "BadString"
)

// Operation names the command a native failure came from.
type Operation int

const (
	OpOpen Operation = iota
	OpSend
	OpClose
)

func (o Operation) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpSend:
		return "send"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// Normalize maps a native failure to an ErrorKind. Anything it does not
// recognise falls back to the most conservative kind for op.
func Normalize(op Operation, err error) ErrorKind {
	switch op {
	case OpOpen:
		if errors.Is(err, interfaces.ErrSecurity) {
			return BadSecurity
		}
		return BadArgs
	case OpSend:
		if errors.Is(err, interfaces.ErrNotOpen) {
			return NotOpen
		}
		return BadString
	default:
		if errors.Is(err, interfaces.ErrBadReason) {
			return BadReason
		}
		return BadCode
	}
}
