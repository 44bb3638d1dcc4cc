package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scavenger/internal/config"
	"scavenger/internal/db"
	"scavenger/internal/engine"
	"scavenger/internal/migrate"
)

func newWebhookEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, config.Default("webhook-test"))
}

func TestWebhookDispatcherStopsOnCancel(t *testing.T) {
	d := &webhookDispatcher{cursors: make(map[int]int64)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher kept running after cancel")
	}
}

func TestWebhookDelivery(t *testing.T) {
	e := newWebhookEngine(t)
	ctx := context.Background()
	if _, err := e.RegisterParticipant(ctx, engine.RegisterOptions{
		Actor:   "addr-a",
		Address: "addr-a",
		Role:    "collector",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var mu sync.Mutex
	var got []string
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("X-Scavenger-Event"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	d := &webhookDispatcher{
		engine:   e,
		webhooks: []config.WebhookConfig{{URL: endpoint.URL}},
		client:   endpoint.Client(),
		cursors:  map[int]int64{0: 0},
	}
	d.dispatchAll(ctx)

	deliveries := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
	if first := deliveries(); len(first) != 1 || first[0] != "participant.registered" {
		t.Fatalf("deliveries %v", first)
	}
	if d.cursorFor(ctx, 0) == 0 {
		t.Fatalf("cursor did not advance")
	}

	// Nothing new: no second delivery.
	d.dispatchAll(ctx)
	if again := deliveries(); len(again) != 1 {
		t.Fatalf("redelivered already-acked events: %v", again)
	}
}
