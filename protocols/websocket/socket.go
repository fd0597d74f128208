package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

const (
	controlWriteWait = time.Second
	maxReasonBytes   = 123
)

var _ interfaces.Socket = (*WSSocket)(nil)

type closeFrame struct {
	code   int
	reason string
}

// WSSocket is one client connection. Its readiness only moves forward
// and OnClose is always the last listener call.
type WSSocket struct {
	url    string
	config Config
	dialer *websocket.Dialer
	header http.Header
	l      interfaces.Listeners
	cancel context.CancelFunc

	mu       sync.Mutex
	state    atomic.Int32
	buffered atomic.Int64

	sendCh  chan string
	closeCh chan closeFrame
	done    chan struct{}
}

func (s *WSSocket) URL() string { return s.url }

func (s *WSSocket) ReadyState() interfaces.ReadyState {
	return interfaces.ReadyState(s.state.Load())
}

func (s *WSSocket) BufferedAmount() int {
	return int(s.buffered.Load())
}

func (s *WSSocket) setState(st interfaces.ReadyState) {
	s.state.Store(int32(st))
}

func (s *WSSocket) Send(message string) error {
	if s.ReadyState() != interfaces.StateOpen {
		return interfaces.ErrNotOpen
	}
	if !utf8.ValidString(message) {
		return interfaces.ErrInvalidUTF8
	}

	n := int64(len(message))
	if limit := s.config.MaxBufferedAmount; limit > 0 && s.buffered.Load()+n > int64(limit) {
		return fmt.Errorf("%w: %d bytes already queued", interfaces.ErrBufferFull, s.buffered.Load())
	}

	s.buffered.Add(n)
	select {
	case s.sendCh <- message:
		return nil
	default:
		s.buffered.Add(-n)
		return interfaces.ErrBufferFull
	}
}

func (s *WSSocket) Close(code int, reason string) error {
	if code != websocket.CloseNormalClosure && (code < 3000 || code > 4999) {
		return fmt.Errorf("%w: %d", interfaces.ErrBadCode, code)
	}
	if !utf8.ValidString(reason) || len(reason) > maxReasonBytes {
		return interfaces.ErrBadReason
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.ReadyState() {
	case interfaces.StateClosing, interfaces.StateClosed:
		return nil
	case interfaces.StateConnecting:
		s.setState(interfaces.StateClosing)
		s.cancel()
		return nil
	}

	s.setState(interfaces.StateClosing)
	s.closeCh <- closeFrame{code: code, reason: reason}
	return nil
}

func (s *WSSocket) run(ctx context.Context) {
	defer s.cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		s.setState(interfaces.StateClosed)
		s.fireError(fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err))
		s.fireClose(interfaces.CloseEvent{Code: websocket.CloseAbnormalClosure})
		return
	}

	s.mu.Lock()
	if s.ReadyState() != interfaces.StateConnecting {
		// closed while the handshake was in flight
		s.mu.Unlock()
		conn.Close()
		s.setState(interfaces.StateClosed)
		s.fireError(fmt.Errorf("%w: closed before the connection was established", interfaces.ErrConnectionFailed))
		s.fireClose(interfaces.CloseEvent{Code: websocket.CloseAbnormalClosure})
		return
	}
	s.setState(interfaces.StateOpen)
	s.mu.Unlock()

	if s.l.OnOpen != nil {
		s.l.OnOpen()
	}

	writerDone := make(chan struct{})
	go s.writePump(conn, writerDone)

	ev := s.readPump(conn)

	s.mu.Lock()
	s.setState(interfaces.StateClosing)
	s.mu.Unlock()

	conn.Close()
	close(s.done)
	<-writerDone

	s.setState(interfaces.StateClosed)
	s.fireClose(ev)
}

func (s *WSSocket) readPump(conn *websocket.Conn) interfaces.CloseEvent {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			// gorilla reports a dropped connection as a local 1006 CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
				return interfaces.CloseEvent{Code: ce.Code, Reason: ce.Text, WasClean: true}
			}
			if s.ReadyState() == interfaces.StateOpen {
				s.fireError(err)
			}
			return interfaces.CloseEvent{Code: websocket.CloseAbnormalClosure}
		}
		if s.l.OnMessage != nil {
			s.l.OnMessage(string(data))
		}
	}
}

func (s *WSSocket) writePump(conn *websocket.Conn, writerDone chan struct{}) {
	defer close(writerDone)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.sendCh:
			if err := s.write(conn, msg); err != nil {
				return
			}
		case f := <-s.closeCh:
			// flush what was queued before close was requested
			for drained := false; !drained; {
				select {
				case msg := <-s.sendCh:
					if err := s.write(conn, msg); err != nil {
						return
					}
				default:
					drained = true
				}
			}

			msg := websocket.FormatCloseMessage(f.code, f.reason)
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait)); err != nil {
				conn.Close()
				return
			}

			timer := time.NewTimer(s.config.CloseTimeout)
			defer timer.Stop()
			select {
			case <-s.done:
			case <-timer.C:
				conn.Close()
			}
			return
		}
	}
}

func (s *WSSocket) write(conn *websocket.Conn, msg string) error {
	if s.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			s.buffered.Add(-int64(len(msg)))
			return err
		}
	}

	err := conn.WriteMessage(websocket.TextMessage, []byte(msg))
	s.buffered.Add(-int64(len(msg)))
	if err != nil {
		// the read loop reports the failure once the conn is gone
		conn.Close()
	}
	return err
}

func (s *WSSocket) fireError(err error) {
	if s.l.OnError != nil {
		s.l.OnError(err, s.ReadyState())
	}
}

func (s *WSSocket) fireClose(ev interfaces.CloseEvent) {
	if s.l.OnClose != nil {
		s.l.OnClose(ev)
	}
}
