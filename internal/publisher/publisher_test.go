package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/klimeurt/repohealth-collector/internal/record"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func runMockNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	server, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready in time")
	}
	return server
}

func TestPublishDeliversRecordJSON(t *testing.T) {
	server := runMockNATSServer(t)
	defer server.Shutdown()

	pub, err := New(server.ClientURL(), "repohealth.records.test")
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect subscriber: %v", err)
	}
	defer nc.Close()

	messages := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("repohealth.records.test", messages)
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	rec := &record.Record{Owner: "org", Name: "repo", Stars: 1500, Language: "Go"}
	rec.SetAttr(record.AttrContributors, 42)

	if err := pub.Publish(rec); err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	select {
	case msg := <-messages:
		var got record.Record
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if got.Owner != "org" || got.Name != "repo" {
			t.Errorf("identity = %s/%s, want org/repo", got.Owner, got.Name)
		}
		if n, ok := got.AttrInt(record.AttrContributors); !ok || n != 42 {
			t.Errorf("contributors attr = %d, %v, want 42", n, ok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for published message")
	}
}

func TestNewFailsOnUnreachableServer(t *testing.T) {
	if _, err := New("nats://127.0.0.1:1", "subject"); err == nil {
		t.Error("New() expected connection error, got nil")
	}
}

func TestCloseShutsDownConnection(t *testing.T) {
	server := runMockNATSServer(t)
	defer server.Shutdown()

	pub, err := New(server.ClientURL(), "subject")
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	if pub.nc.IsClosed() {
		t.Error("connection should be open initially")
	}
	pub.Close()
	if !pub.nc.IsClosed() {
		t.Error("connection should be closed after Close()")
	}
}
