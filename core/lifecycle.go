package core

import (
	"github.com/nats-io/nuid"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

func (b *Bridge) open(p OpenPayload) {
	id := p.ID
	if id == "" {
		id = nuid.Next()
	}
	if b.registry.Contains(id) {
		b.logger.Warn("Rejecting open", "url", p.URL, "id", id, "error", ErrDuplicateID)
		b.emit(Result{Tag: TagBadOpen, Payload: Failure{URL: p.URL, Error: BadArgs}})
		return
	}

	e := &entry{
		handle: SocketHandle{ID: id, URL: p.URL},
		state:  interfaces.StateConnecting,
	}

	sock, err := b.dialer.Dial(p.URL, b.listeners(e))
	if err != nil {
		kind := Normalize(OpOpen, err)
		b.logger.Warn("Failed to open socket", "url", p.URL, "kind", kind, "error", err)
		b.emit(Result{Tag: TagBadOpen, Payload: Failure{URL: p.URL, Error: kind}})
		return
	}

	e.socket = sock
	b.registry.insert(e)
	b.logger.Info("Connecting socket", "url", p.URL, "id", id)
}

// listeners forward transport events onto the event loop. The entry is
// registered before the loop can run any of them.
func (b *Bridge) listeners(e *entry) interfaces.Listeners {
	return interfaces.Listeners{
		OnOpen: func() {
			_ = b.post(func() { b.onOpen(e) })
		},
		OnMessage: func(data string) {
			_ = b.post(func() { b.onMessage(e, data) })
		},
		OnError: func(err error, rs interfaces.ReadyState) {
			_ = b.post(func() { b.onError(e, err, rs) })
		},
		OnClose: func(ev interfaces.CloseEvent) {
			_ = b.post(func() { b.onClose(e, ev) })
		},
	}
}

func (b *Bridge) onOpen(e *entry) {
	if e.state != interfaces.StateConnecting {
		b.logger.Debug("Ignoring open event", "id", e.handle.ID, "state", e.state)
		return
	}
	b.setState(e, interfaces.StateOpen)
	b.emit(Result{Tag: TagGoodOpen, Payload: OpenResult{URL: e.handle.URL, Socket: e.handle}})
}

func (b *Bridge) onMessage(e *entry, data string) {
	b.logger.Debug("Received message", "url", e.handle.URL, "size", len(data))
	b.emit(Result{Tag: e.handle.URL, Payload: data})
}

// onError reports rs as captured by the transport, not the socket's
// current state, which may have moved on while the event was queued.
func (b *Bridge) onError(e *entry, err error, rs interfaces.ReadyState) {
	b.logger.Warn("Socket error", "url", e.handle.URL, "id", e.handle.ID, "readyState", rs, "error", err)
	b.emit(Result{Tag: TagError, Payload: ErrorEvent{URL: e.handle.URL, ReadyState: rs}})
}

func (b *Bridge) onClose(e *entry, ev interfaces.CloseEvent) {
	if e.state == interfaces.StateClosed {
		return
	}
	b.setState(e, interfaces.StateClosed)
	b.registry.remove(e.handle.ID)
	b.emit(Result{Tag: TagClose, Payload: CloseResult{
		URL:      e.handle.URL,
		Code:     ev.Code,
		Reason:   ev.Reason,
		WasClean: ev.WasClean,
	}})
}

func (b *Bridge) send(p SendPayload) {
	url := p.URL
	if url == "" {
		url = p.Socket.URL
	}

	// readiness comes from the transport, never from e.state
	e, ok := b.registry.lookup(p.Socket.ID)
	if !ok || e.socket.ReadyState() != interfaces.StateOpen {
		b.emit(Result{Tag: TagBadSend, Payload: Failure{URL: url, Error: NotOpen}})
		return
	}

	if err := e.socket.Send(p.Message); err != nil {
		kind := Normalize(OpSend, err)
		b.logger.Warn("Failed to send message", "url", url, "kind", kind, "error", err)
		b.emit(Result{Tag: TagBadSend, Payload: Failure{URL: url, Error: kind}})
		return
	}
	b.emit(Result{Tag: TagGoodSend, Payload: SendResult{URL: url}})
}

// close only requests closure; completion is reported by onClose.
func (b *Bridge) close(p ClosePayload) {
	url := p.URL
	if url == "" {
		url = p.Socket.URL
	}

	e, ok := b.registry.lookup(p.Socket.ID)
	if !ok {
		b.logger.Debug("Close for unknown socket ignored", "url", url, "id", p.Socket.ID)
		return
	}

	if err := e.socket.Close(b.config.Bridge.CloseCode, p.UID); err != nil {
		kind := Normalize(OpClose, err)
		b.logger.Warn("Failed to close socket", "url", url, "kind", kind, "error", err)
		b.emit(Result{Tag: string(kind), Payload: CloseFailure{URL: url}})
		return
	}

	if e.state == interfaces.StateConnecting || e.state == interfaces.StateOpen {
		b.setState(e, interfaces.StateClosing)
	}
}

func (b *Bridge) setState(e *entry, newState interfaces.ReadyState) {
	oldState := e.state
	if oldState == newState {
		return
	}
	e.state = newState
	b.logger.Info("State changed",
		"url", e.handle.URL,
		"id", e.handle.ID,
		"from", oldState,
		"to", newState)
}
