package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTMirror republishes every notifier event to an MQTT broker under
// <root>/<channel>/<kind>, so external consumers can follow mesh traffic
// without a subscription to this process.
type MQTTMirror struct {
	client mqtt.Client
	root   string
}

var _ Sink = (*MQTTMirror)(nil)

// NewMQTTMirror connects to the broker and returns the mirror sink.
func NewMQTTMirror(broker, clientID, root string) (*MQTTMirror, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}

	slog.Info("mqtt mirror connected", "broker", broker, "root", root)
	return &MQTTMirror{client: client, root: root}, nil
}

// Publish mirrors one event. Failures are logged and dropped; the mirror is
// an uplink, never a gate on the receive path.
func (m *MQTTMirror) Publish(channel uint32, kind string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("mqtt mirror: unencodable payload", "kind", kind, "error", err)
		return
	}

	topic := fmt.Sprintf("%s/%d/%s", m.root, channel, kind)
	token := m.client.Publish(topic, 0, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			slog.Warn("mqtt mirror publish failed", "topic", topic, "error", token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
}
