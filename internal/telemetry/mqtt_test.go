package telemetry

import (
	"testing"

	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
)

func TestNewHandler_RequiresEnabled(t *testing.T) {
	if _, err := NewHandler(config.MQTTConfig{Enabled: false}, events.NewEventBus()); err == nil {
		t.Error("expected error when mqtt telemetry is disabled")
	}
}

func TestNewHandler_DefaultsClientID(t *testing.T) {
	h, err := NewHandler(config.MQTTConfig{
		Enabled:   true,
		BrokerURL: "localhost",
		Port:      1883,
	}, events.NewEventBus())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if h.client == nil {
		t.Error("expected a configured mqtt client")
	}
}

func TestHandler_BuildMessage_CarriesMetadataAndPayload(t *testing.T) {
	h := &Handler{
		metadata: map[string]interface{}{"hostname": "box1", "platform": "linux"},
	}

	msg := h.buildMessage(map[string]string{"foo": "bar"})

	if msg["hostname"] != "box1" {
		t.Errorf("expected metadata to be merged in, got %#v", msg)
	}
	if _, ok := msg["correlation_id"]; !ok {
		t.Error("expected a correlation_id field")
	}
	if _, ok := msg["timestamp"]; !ok {
		t.Error("expected a timestamp field")
	}
	payload, ok := msg["payload"].(map[string]string)
	if !ok || payload["foo"] != "bar" {
		t.Errorf("expected payload to be carried through unchanged, got %#v", msg["payload"])
	}
}

func TestHandler_Publish_NoopWhenDisconnected(t *testing.T) {
	h, err := NewHandler(config.MQTTConfig{
		Enabled:   true,
		BrokerURL: "localhost",
		Port:      1883,
	}, events.NewEventBus())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	// client was never connected; publish must not panic or block.
	h.publish(TopicHeartbeat, map[string]string{"status": "ok"})
}
