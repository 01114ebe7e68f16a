package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/torosent/lrcctl/internal/events"
)

func TestRunStartedCarriesTags(t *testing.T) {
	e := events.RunStarted("123", "1", 42)
	if e.Kind != events.KindRunStarted {
		t.Fatalf("expected run started kind, got %q", e.Kind)
	}
	want := map[string]string{"tenantId": "123", "projectId": "1", "runId": "42"}
	for k, v := range want {
		if e.Tags[k] != v {
			t.Fatalf("expected tag %s=%s, got %q", k, v, e.Tags[k])
		}
	}
	if len(e.ID) != 26 {
		t.Fatalf("expected ULID id, got %q", e.ID)
	}
	if e.Kind.Terminal() {
		t.Fatalf("run started must not be terminal")
	}
}

func TestTerminalKinds(t *testing.T) {
	if !events.Go(1).Kind.Terminal() || !events.Stop(1, "timeout").Kind.Terminal() {
		t.Fatalf("Go! and Stop! must be terminal")
	}
	if events.Stop(1, "timeout").Reason != "timeout" {
		t.Fatalf("expected reason on Stop!")
	}
	if a, b := events.Go(1), events.Go(1); a.ID == b.ID {
		t.Fatalf("expected unique event ids")
	}
}

type failingBus struct{ err error }

func (f failingBus) Publish(context.Context, events.Event) error { return f.err }

func TestMultiBusTriesEveryBus(t *testing.T) {
	first := &events.MemoryBus{}
	last := &events.MemoryBus{}
	boom := errors.New("boom")
	bus := events.MultiBus{first, failingBus{err: boom}, nil, last}

	err := bus.Publish(context.Background(), events.Go(42))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error containing boom, got %v", err)
	}
	if first.Count(events.KindGo) != 1 || last.Count(events.KindGo) != 1 {
		t.Fatalf("expected both memory buses to receive the event")
	}
	if err := (events.MultiBus{first}).Publish(context.Background(), events.Go(42)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestMemoryBusWaitFor(t *testing.T) {
	bus := &events.MemoryBus{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), events.RunStarted("123", "1", 42))
		_ = bus.Publish(context.Background(), events.Stop(42, "cancelled"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := bus.WaitFor(ctx, events.KindStop)
	if err != nil {
		t.Fatalf("WaitFor error = %v", err)
	}
	if e.Reason != "cancelled" {
		t.Fatalf("unexpected event %+v", e)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := bus.WaitFor(short, events.KindGo); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestConsoleBusFormatsLine(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	bus := events.NewConsoleBus(&buf)

	e := events.RunStarted("123", "1", 42)
	e.Time = time.Date(2026, 10, 19, 9, 5, 7, 0, time.UTC)
	if err := bus.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish error = %v", err)
	}
	stop := events.Stop(42, "timeout")
	stop.Time = e.Time
	if err := bus.Publish(context.Background(), stop); err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	want := "09:05:07 run started projectId=1 runId=42 tenantId=123\n09:05:07 Stop! runId=42 (timeout)\n"
	if buf.String() != want {
		t.Fatalf("unexpected console output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWebhookBusPostsJSON(t *testing.T) {
	received := make(chan events.Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var e events.Event
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &e); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- e
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	bus := events.NewWebhookBus(server.URL, nil)
	if err := bus.Publish(context.Background(), events.Go(42)); err != nil {
		t.Fatalf("Publish error = %v", err)
	}
	e := <-received
	if e.Kind != events.KindGo || e.Tags["runId"] != "42" {
		t.Fatalf("unexpected delivered event %+v", e)
	}
}

func TestWebhookBusReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := events.NewWebhookBus(server.URL, nil).Publish(context.Background(), events.Go(42))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestWebSocketBusPublishes(t *testing.T) {
	received := make(chan []byte, 2)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	defer server.Close()

	bus := events.NewWebSocketBus("ws" + strings.TrimPrefix(server.URL, "http"))
	defer bus.Close()

	if err := bus.Publish(context.Background(), events.RunStarted("123", "1", 42)); err != nil {
		t.Fatalf("Publish error = %v", err)
	}
	if err := bus.Publish(context.Background(), events.Go(42)); err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	for _, want := range []events.Kind{events.KindRunStarted, events.KindGo} {
		select {
		case data := <-received:
			var e events.Event
			if err := json.Unmarshal(data, &e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Kind != want {
				t.Fatalf("expected %q, got %q", want, e.Kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	if m := bus.Metrics(); m.MessagesSent != 2 {
		t.Fatalf("expected 2 messages sent, got %d", m.MessagesSent)
	}
}
