package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/lisuiheng/wsbridge/core"
	"github.com/lisuiheng/wsbridge/logger"
	"github.com/lisuiheng/wsbridge/ports"
)

func main() {
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/, /etc/wsbridge/)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	closeOnEOF := flag.Bool("close-on-eof", false, "Shut down once stdin is exhausted (stdio port only)")
	flag.Parse()

	if err := run(*configPath, *debug, *closeOnEOF); err != nil {
		logger.Error("wsbridge exited with error", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it creates, so its defers run on each return.
func run(configPath string, debug, closeOnEOF bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := initLogger(cfg, debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Info("Shutting down wsbridge")

	dialer, err := core.NewDialer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	bridge, err := core.NewBridge(cfg, dialer, logger.Logger())
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.Error("Failed to close bridge", "error", err)
		}
	}()

	port, err := newPort(cfg, closeOnEOF)
	if err != nil {
		return fmt.Errorf("failed to create port: %w", err)
	}
	defer func() {
		if closer, ok := port.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close port", "port", port.Name(), "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		logger.Info("Starting bridge")
		if err := bridge.Run(ctx); err != nil {
			logger.Error("Bridge runtime error", "error", err)
		}
		cancel()
	}()

	go func() {
		logger.Info("Serving port", "port", port.Name())
		if err := port.Serve(ctx, bridge); err != nil {
			logger.Error("Port stopped", "port", port.Name(), "error", err)
		}
		cancel()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}
	return nil
}

func newPort(cfg core.Config, closeOnEOF bool) (ports.Port, error) {
	switch cfg.Port.Kind {
	case "", "stdio":
		p := ports.NewStdio(os.Stdin, os.Stdout, logger.Logger())
		p.CloseOnEOF = closeOnEOF
		return p, nil
	case "nats":
		if cfg.Port.NATS == nil {
			return nil, errors.New("nats port config missing")
		}
		return ports.DialNATS(*cfg.Port.NATS, logger.Logger())
	default:
		return nil, fmt.Errorf("unsupported port: %s", cfg.Port.Kind)
	}
}

// loadConfig 加载配置文件，找不到时使用默认值
func loadConfig(configPath string) (core.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("wsbridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/wsbridge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return core.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg core.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := core.DefaultConfig()
	v.SetDefault("bridge.result_buffer", d.Bridge.ResultBuffer)
	v.SetDefault("bridge.command_buffer", d.Bridge.CommandBuffer)
	v.SetDefault("bridge.close_code", d.Bridge.CloseCode)

	v.SetDefault("transport.kind", d.Transport.Kind)
	v.SetDefault("transport.handshake_timeout", d.Transport.HandshakeTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.close_timeout", d.Transport.CloseTimeout)
	v.SetDefault("transport.send_queue", d.Transport.SendQueue)
	v.SetDefault("transport.max_buffered_amount", d.Transport.MaxBufferedAmount)
	v.SetDefault("transport.enable_compression", d.Transport.EnableCompression)

	v.SetDefault("security.allow_insecure", d.Security.AllowInsecure)

	v.SetDefault("port.kind", d.Port.Kind)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.outputs", d.Logging.Outputs)
}

func initLogger(cfg core.Config, debug bool) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
	}

	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stderr"}
	}

	return logger.Init(logCfg)
}
