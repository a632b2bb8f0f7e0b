package sync

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpattn/homegraph/internal/domain"

	"go.uber.org/zap"
)

func TestClientExchangeOverHTTP(t *testing.T) {
	ctx := context.Background()
	a := newReplica(t, "replica-a")
	b := newReplica(t, "replica-b")

	lamp := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	a.write(t, lamp)
	sensor := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Sensor"}, "u1", domain.SourceManual)
	b.write(t, sensor)

	server := httptest.NewServer(NewHTTPHandler(b.engine, zap.NewNop()))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zap.NewNop())
	summary, err := a.engine.SyncWith(ctx, "replica-b", client)
	if err != nil {
		t.Fatalf("sync over http: %v", err)
	}
	if summary.Sent != 1 || summary.AcceptedByRemote != 1 || summary.Received != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if has, _ := b.store.HasEntity(ctx, lamp.ID); !has {
		t.Fatal("change did not reach the remote store")
	}
	if has, _ := a.store.HasEntity(ctx, sensor.ID); !has {
		t.Fatal("remote change did not come back")
	}
}

func TestClientReportsServerErrorsAsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	_, err := client.Exchange(context.Background(), Request{ProtocolVersion: ProtocolVersion})
	if !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestHTTPHandlerRejectsBadRequests(t *testing.T) {
	b := newReplica(t, "replica-b")
	server := httptest.NewServer(NewHTTPHandler(b.engine, zap.NewNop()))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET must be rejected, got %d", resp.StatusCode)
	}

	body := bytes.NewBufferString(`{"protocol_version":"inbetweenies-v0"}`)
	resp, err = http.Post(server.URL, "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong protocol must yield 400, got %d", resp.StatusCode)
	}
}
