package core

import (
	"encoding/json"
	"fmt"
)

// CommandTag selects the handler a Command is routed to.
type CommandTag string

const (
	CmdOpen  CommandTag = "open"
	CmdSend  CommandTag = "send"
	CmdClose CommandTag = "close"
)

// Command is one instruction from the caller. Payload is an OpenPayload,
// SendPayload or ClosePayload matching Tag.
type Command struct {
	Tag     CommandTag `json:"tag"`
	Payload any        `json:"payload"`
}

type OpenPayload struct {
	URL string `json:"url"`
	// ID optionally names the socket; one is generated when empty.
	ID string `json:"id,omitempty"`
}

type SendPayload struct {
	URL     string       `json:"url"`
	Socket  SocketHandle `json:"socket"`
	Message string       `json:"message"`
}

// ClosePayload carries UID as the close reason, for correlating the
// close in logs on either side.
type ClosePayload struct {
	URL    string       `json:"url"`
	Socket SocketHandle `json:"socket"`
	UID    string       `json:"uid"`
}

func OpenCommand(url string) Command {
	return Command{Tag: CmdOpen, Payload: OpenPayload{URL: url}}
}

func SendCommand(h SocketHandle, message string) Command {
	return Command{Tag: CmdSend, Payload: SendPayload{URL: h.URL, Socket: h, Message: message}}
}

func CloseCommand(h SocketHandle, uid string) Command {
	return Command{Tag: CmdClose, Payload: ClosePayload{URL: h.URL, Socket: h, UID: uid}}
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tag     CommandTag      `json:"tag"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommand, err)
	}

	c.Tag = raw.Tag
	switch raw.Tag {
	case CmdOpen:
		// the payload may be the bare address
		var url string
		if err := json.Unmarshal(raw.Payload, &url); err == nil {
			c.Payload = OpenPayload{URL: url}
			return nil
		}
		var p OpenPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("%w: open payload: %v", ErrBadCommand, err)
		}
		c.Payload = p
	case CmdSend:
		var p SendPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("%w: send payload: %v", ErrBadCommand, err)
		}
		c.Payload = p
	case CmdClose:
		var p ClosePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("%w: close payload: %v", ErrBadCommand, err)
		}
		c.Payload = p
	default:
		c.Payload = raw.Payload
	}
	return nil
}
