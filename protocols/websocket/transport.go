// protocols/websocket/transport.go
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/wsbridge/pkg/interfaces"
)

var _ interfaces.Dialer = (*WSDialer)(nil)

// Config 定义websocket传输层与安全策略配置
type Config struct {
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	CloseTimeout      time.Duration
	SendQueue         int
	MaxBufferedAmount int
	EnableCompression bool
	Subprotocols      []string
	Headers           map[string]string
	Security          struct {
		AllowInsecure bool
		AllowedHosts  []string
		BlockedPorts  []int
	}
}

func DefaultConfig() Config {
	cfg := Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     5 * time.Second,
		SendQueue:        256,
	}
	cfg.Security.AllowInsecure = true
	return cfg
}

type WSDialer struct {
	config Config
	dialer *websocket.Dialer
	header http.Header
}

func NewWebSocketDialer(config Config) (*WSDialer, error) {
	if config.SendQueue <= 0 {
		return nil, fmt.Errorf("send queue must be positive, got %d", config.SendQueue)
	}

	headers := http.Header{}
	for k, v := range config.Headers {
		headers.Set(k, v)
	}

	return &WSDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  config.HandshakeTimeout,
			EnableCompression: config.EnableCompression,
			Subprotocols:      config.Subprotocols,
		},
		header: headers,
	}, nil
}

func (d *WSDialer) ProtocolType() string { return "websocket" }

func (d *WSDialer) Dial(rawURL string, l interfaces.Listeners) (interfaces.Socket, error) {
	if err := d.checkURL(rawURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &WSSocket{
		url:     rawURL,
		config:  d.config,
		dialer:  d.dialer,
		header:  d.header.Clone(),
		l:       l,
		cancel:  cancel,
		sendCh:  make(chan string, d.config.SendQueue),
		closeCh: make(chan closeFrame, 1),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(interfaces.StateConnecting))

	go s.run(ctx)
	return s, nil
}

// checkURL rejects addresses a browser would refuse at construction time.
func (d *WSDialer) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBadURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrBadURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", interfaces.ErrBadURL)
	}
	if u.Fragment != "" || strings.Contains(rawURL, "#") {
		return fmt.Errorf("%w: fragments are not allowed", interfaces.ErrBadURL)
	}

	sec := d.config.Security
	if u.Scheme == "ws" && !sec.AllowInsecure {
		return fmt.Errorf("%w: insecure scheme", interfaces.ErrSecurity)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "wss" {
			port = "443"
		}
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%w: bad port %q", interfaces.ErrBadURL, port)
	}
	if slices.Contains(sec.BlockedPorts, p) {
		return fmt.Errorf("%w: port %d is blocked", interfaces.ErrSecurity, p)
	}
	if len(sec.AllowedHosts) > 0 && !slices.Contains(sec.AllowedHosts, u.Hostname()) {
		return fmt.Errorf("%w: host %q is not allowed", interfaces.ErrSecurity, u.Hostname())
	}
	return nil
}
