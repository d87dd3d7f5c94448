package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
)

func TestNewNotifier_RequiresEnabledAndURL(t *testing.T) {
	if _, err := NewNotifier(config.AlertConfig{Enabled: false}); err == nil {
		t.Error("expected error when alerting disabled")
	}
	if _, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: ""}); err == nil {
		t.Error("expected error when webhook url is empty")
	}
	if _, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: "http://example.invalid"}); err != nil {
		t.Errorf("expected no error with enabled+url, got %v", err)
	}
}

func TestNotifier_OnRCONAuthFailed_PostsEmbed(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	err = n.onRCONAuthFailed(context.Background(), events.Event{
		Type:    events.EventRCONAuthFailed,
		Payload: events.RCONAuthPayload{Addr: "1.2.3.4:27015", OK: false},
	})
	if err != nil {
		t.Fatalf("onRCONAuthFailed: %v", err)
	}

	embeds, ok := received["embeds"].([]interface{})
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one embed in payload, got %#v", received)
	}
}

func TestNotifier_OnMasterDone_SkipsNonTimeout(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	err = n.onMasterDone(context.Background(), events.Event{
		Type:    events.EventMasterDone,
		Payload: events.MasterDonePayload{MasterAddr: "hl2master.steampowered.com:27011", Total: 50, TimedOut: false},
	})
	if err != nil {
		t.Fatalf("onMasterDone: %v", err)
	}
	if called {
		t.Error("expected no webhook call for a non-timed-out master iteration")
	}
}

func TestNotifier_OnMasterDone_SendsOnTimeout(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	err = n.onMasterDone(context.Background(), events.Event{
		Type:    events.EventMasterDone,
		Payload: events.MasterDonePayload{MasterAddr: "hl2master.steampowered.com:27011", Total: 12, TimedOut: true, Err: "context deadline exceeded"},
	})
	if err != nil {
		t.Fatalf("onMasterDone: %v", err)
	}
	if received == nil {
		t.Fatal("expected webhook call for a timed-out master iteration")
	}
}

func TestNotifier_Send_ReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	n, err := NewNotifier(config.AlertConfig{Enabled: true, WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	if err := n.send(context.Background(), "title", "message", "error"); err == nil {
		t.Error("expected error on 500 response")
	}
}
