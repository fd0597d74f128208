package ports

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	"github.com/lisuiheng/wsbridge/core"
)

func TestDialNATS_RequiresSubjects(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		cfg  core.NATSConfig
	}{
		{"no subjects", core.NATSConfig{URL: nats.DefaultURL}},
		{"no command subject", core.NATSConfig{URL: nats.DefaultURL, ResultSubject: "wsbridge.results"}},
		{"no result subject", core.NATSConfig{URL: nats.DefaultURL, CommandSubject: "wsbridge.commands"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p, err := DialNATS(tt.cfg, log); err == nil {
				p.Close()
				t.Fatal("expected error for missing subject")
			}
		})
	}
}

func TestNATS_Serve(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	url := echoServer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := core.DefaultConfig()
	dialer, err := core.NewDialer(cfg)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	b, err := core.NewBridge(cfg, dialer, log)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	natsCfg := core.NATSConfig{
		URL:            srv.ClientURL(),
		CommandSubject: "wsbridge.commands",
		ResultSubject:  "wsbridge.results",
	}
	port, err := DialNATS(natsCfg, log)
	if err != nil {
		t.Fatalf("dial nats: %v", err)
	}
	defer port.Close()

	client, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer client.Close()

	msgs := make(chan *nats.Msg, 16)
	if _, err := client.ChanSubscribe(natsCfg.ResultSubject, msgs); err != nil {
		t.Fatalf("subscribe results: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	served := make(chan error, 1)
	go func() { served <- port.Serve(ctx, b) }()

	// commands published before the port subscribes are lost
	deadline := time.Now().Add(3 * time.Second)
	for port.conn.NumSubscriptions() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("port never subscribed to the command subject")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := port.conn.Flush(); err != nil {
		t.Fatalf("flush port: %v", err)
	}

	next := func() wireResult {
		t.Helper()
		select {
		case m := <-msgs:
			var r wireResult
			if err := json.Unmarshal(m.Data, &r); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			return r
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for result")
		}
		return wireResult{}
	}
	publish := func(cmd core.Command) {
		t.Helper()
		data, err := json.Marshal(cmd)
		if err != nil {
			t.Fatalf("marshal %s: %v", cmd.Tag, err)
		}
		if err := client.Publish(natsCfg.CommandSubject, data); err != nil {
			t.Fatalf("publish %s: %v", cmd.Tag, err)
		}
	}

	if err := client.Publish(natsCfg.CommandSubject, []byte("not json")); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	publish(core.OpenCommand(url))

	r := next()
	if r.Tag != core.TagGoodOpen {
		t.Fatalf("expected %s, got %s %s", core.TagGoodOpen, r.Tag, r.Payload)
	}
	var opened core.OpenResult
	if err := json.Unmarshal(r.Payload, &opened); err != nil {
		t.Fatalf("decode GoodOpen: %v", err)
	}

	publish(core.SendCommand(opened.Socket, "ping"))
	if r := next(); r.Tag != core.TagGoodSend {
		t.Fatalf("expected %s, got %s", core.TagGoodSend, r.Tag)
	}
	if r := next(); r.Tag != url || string(r.Payload) != `"ping"` {
		t.Fatalf("expected echo tagged %s, got %s %s", url, r.Tag, r.Payload)
	}

	publish(core.CloseCommand(opened.Socket, "done"))
	r = next()
	if r.Tag != core.TagClose {
		t.Fatalf("expected %s, got %s %s", core.TagClose, r.Tag, r.Payload)
	}
	var closed core.CloseResult
	if err := json.Unmarshal(r.Payload, &closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.URL != url || closed.Code != 1000 || !closed.WasClean {
		t.Errorf("close = %+v, want clean 1000", closed)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
