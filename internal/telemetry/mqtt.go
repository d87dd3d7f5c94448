// Package telemetry republishes EventBus activity onto MQTT topics for
// external monitoring (Grafana, Home Assistant, a fleet dashboard), so an
// operator watching many agql instances does not have to poll each one's
// REST facade.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/util"
)

// MQTT topic names, one per ambient concern the EventBus carries.
const (
	TopicQueryCompleted = "agql/query/completed"
	TopicQueryFailed    = "agql/query/failed"
	TopicRCONAuth       = "agql/rcon/auth"
	TopicHeartbeat      = "agql/status/heartbeat"
	TopicShutdown       = "agql/status/shutdown"
)

// Handler owns the MQTT connection and republishes EventBus events onto it.
type Handler struct {
	mu sync.Mutex

	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client

	// metadata is merged into every published message so a subscriber can
	// tell which instance an event came from without a separate topic per
	// host.
	metadata map[string]interface{}
}

// NewHandler creates an MQTT telemetry Handler. It returns an error if MQTT
// is disabled in cfg, so callers can skip Start entirely rather than test a
// bool twice.
func NewHandler(cfg config.MQTTConfig, eventBus *events.EventBus) (*Handler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("mqtt telemetry disabled in config")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname": sysInfo.Hostname,
		"platform": string(sysInfo.Platform),
	}

	h := &Handler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("agql-%s-%s", sysInfo.Hostname, uuid.NewString()[:8])
	}
	opts.SetClientID(clientID)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("mqtt telemetry connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt telemetry connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

// Start connects to the broker, subscribes to the EventBus, and blocks until
// ctx is cancelled, at which point it publishes a shutdown message and
// disconnects cleanly.
func (h *Handler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting mqtt telemetry")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.publishShutdown()
	h.client.Disconnect(500)
	log.Info().Msg("mqtt telemetry disconnected")
	return nil
}

func (h *Handler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventQueryCompleted, "mqtt.queryCompleted", h.onQueryCompleted)
	h.eventBus.Subscribe(events.EventQueryFailed, "mqtt.queryFailed", h.onQueryFailed)
	h.eventBus.Subscribe(events.EventRCONAuthenticated, "mqtt.rconAuth", h.onRCONAuth)
	h.eventBus.Subscribe(events.EventRCONAuthFailed, "mqtt.rconAuth", h.onRCONAuth)
	h.eventBus.Subscribe(events.EventHeartbeat, "mqtt.heartbeat", h.onHeartbeat)
}

func (h *Handler) onQueryCompleted(_ context.Context, event events.Event) error {
	h.publish(TopicQueryCompleted, event.Payload)
	return nil
}

func (h *Handler) onQueryFailed(_ context.Context, event events.Event) error {
	h.publish(TopicQueryFailed, event.Payload)
	return nil
}

func (h *Handler) onRCONAuth(_ context.Context, event events.Event) error {
	h.publish(TopicRCONAuth, event.Payload)
	return nil
}

func (h *Handler) onHeartbeat(_ context.Context, event events.Event) error {
	h.publish(TopicHeartbeat, event.Payload)
	return nil
}

// publish sends a JSON message carrying a fresh correlation id to topic.
func (h *Handler) publish(topic string, payload interface{}) {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal mqtt message")
		return
	}

	token := client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (h *Handler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["correlation_id"] = uuid.NewString()
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	msg["payload"] = payload
	return msg
}

func (h *Handler) publishShutdown() {
	h.publish(TopicShutdown, map[string]interface{}{"event": "shutdown"})
}
