package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/lisuiheng/wsbridge/pkg/interfaces"
	"github.com/lisuiheng/wsbridge/protocols/websocket"
)

// Config 是桥接服务配置结构（与YAML文件结构一致）
type Config struct {
	Bridge struct {
		ResultBuffer  int `mapstructure:"result_buffer"`
		CommandBuffer int `mapstructure:"command_buffer"`
		CloseCode     int `mapstructure:"close_code"`
	} `mapstructure:"bridge"`

	Transport struct {
		Kind              string            `mapstructure:"kind"`
		HandshakeTimeout  time.Duration     `mapstructure:"handshake_timeout"`
		WriteTimeout      time.Duration     `mapstructure:"write_timeout"`
		CloseTimeout      time.Duration     `mapstructure:"close_timeout"`
		SendQueue         int               `mapstructure:"send_queue"`
		MaxBufferedAmount int               `mapstructure:"max_buffered_amount"`
		EnableCompression bool              `mapstructure:"enable_compression"`
		Subprotocols      []string          `mapstructure:"subprotocols"`
		Headers           map[string]string `mapstructure:"headers"`
	} `mapstructure:"transport"`

	Security struct {
		AllowInsecure bool     `mapstructure:"allow_insecure"`
		AllowedHosts  []string `mapstructure:"allowed_hosts"`
		BlockedPorts  []int    `mapstructure:"blocked_ports"`
	} `mapstructure:"security"`

	Port struct {
		Kind string      `mapstructure:"kind"`
		NATS *NATSConfig `mapstructure:"nats"`
	} `mapstructure:"port"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Format  string   `mapstructure:"format"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

type NATSConfig struct {
	URL            string `mapstructure:"url"`
	CommandSubject string `mapstructure:"command_subject"`
	ResultSubject  string `mapstructure:"result_subject"`
}

// DefaultConfig returns the settings used when no config file is found.
func DefaultConfig() Config {
	var cfg Config
	cfg.Bridge.ResultBuffer = 64
	cfg.Bridge.CommandBuffer = 64
	cfg.Bridge.CloseCode = 1000

	ws := websocket.DefaultConfig()
	cfg.Transport.Kind = "websocket"
	cfg.Transport.HandshakeTimeout = ws.HandshakeTimeout
	cfg.Transport.WriteTimeout = ws.WriteTimeout
	cfg.Transport.CloseTimeout = ws.CloseTimeout
	cfg.Transport.SendQueue = ws.SendQueue
	cfg.Security.AllowInsecure = ws.Security.AllowInsecure

	cfg.Port.Kind = "stdio"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Outputs = []string{"stderr"}
	return cfg
}

// NewDialer 根据配置创建对应的传输实例
func NewDialer(config Config) (interfaces.Dialer, error) {
	switch config.Transport.Kind {
	case "websocket":
		wsConfig := websocket.Config{
			HandshakeTimeout:  config.Transport.HandshakeTimeout,
			WriteTimeout:      config.Transport.WriteTimeout,
			CloseTimeout:      config.Transport.CloseTimeout,
			SendQueue:         config.Transport.SendQueue,
			MaxBufferedAmount: config.Transport.MaxBufferedAmount,
			EnableCompression: config.Transport.EnableCompression,
			Subprotocols:      config.Transport.Subprotocols,
			Headers:           config.Transport.Headers,
		}
		wsConfig.Security.AllowInsecure = config.Security.AllowInsecure
		wsConfig.Security.AllowedHosts = config.Security.AllowedHosts
		wsConfig.Security.BlockedPorts = config.Security.BlockedPorts
		return websocket.NewWebSocketDialer(wsConfig)
	case "":
		return nil, errors.New("transport kind missing")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, config.Transport.Kind)
	}
}
