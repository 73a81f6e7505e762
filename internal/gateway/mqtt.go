// Package gateway bridges the device-facing transports to the session layer:
// an MQTT control bus for wake/end signaling and a UDP data plane for audio.
// The gateway translates; it holds no session state of its own.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
)

const (
	// controlTopicFilter matches every device's control topic. The device id
	// is the second topic segment.
	controlTopicFilter = "devices/+/control"
	// lifecycleTopicPrefix is where session lifecycle notifications are
	// published for observability consumers.
	lifecycleTopicPrefix = "voxbridge/sessions/"
)

// Controller is the slice of the session manager the control bus drives.
// Every method must be idempotent: the bus delivers at least once.
type Controller interface {
	Wake(deviceID, sessionID string) string
	EndUtterance(deviceID, sessionID string)
	EndSession(deviceID, sessionID string)
	PlaybackAck(deviceID, sessionID string)
}

// ControlMessage is the JSON payload on a device's control topic.
type ControlMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// Control message types.
const (
	ControlWake           = "wake"
	ControlEndOfUtterance = "end_of_utterance"
	ControlSessionEnd     = "session_end"
	ControlPlaybackAck    = "playback_ack"
)

// ControlBusConfig configures the MQTT connection.
type ControlBusConfig struct {
	BrokerURL string
	ClientID  string
	KeepAlive uint16
}

// ControlBus subscribes to device control topics and maps each message onto
// exactly one session-manager call. It also publishes session lifecycle
// notifications.
type ControlBus struct {
	cm         *autopaho.ConnectionManager
	controller Controller
	logger     *zap.Logger
}

// NewControlBus connects to the broker and subscribes to the control topics.
// The connection manager reconnects and resubscribes on its own.
func NewControlBus(ctx context.Context, cfg ControlBusConfig, controller Controller, logger *zap.Logger) (*ControlBus, error) {
	brokerURL, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "voxbridge"
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 20
	}

	bus := &ControlBus{controller: controller, logger: logger}

	clientConfig := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("control bus connected", zap.String("broker", brokerURL.Redacted()))
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: controlTopicFilter, QoS: 1},
				},
			}); err != nil {
				logger.Error("control topic subscription failed", zap.Error(err))
			}
		},
		OnConnectError: func(err error) {
			logger.Warn("control bus connection error", zap.Error(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					bus.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("connect control bus: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("await control bus connection: %w", err)
	}
	bus.cm = cm
	return bus, nil
}

// handleMessage routes one control-plane publish. Malformed messages are
// logged and dropped; session state is never affected by garbage.
func (b *ControlBus) handleMessage(topic string, payload []byte) {
	deviceID, ok := deviceFromControlTopic(topic)
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", zap.String("topic", topic))
		return
	}

	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed control message dropped",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return
	}

	switch msg.Type {
	case ControlWake:
		b.controller.Wake(deviceID, msg.SessionID)
	case ControlEndOfUtterance:
		b.controller.EndUtterance(deviceID, msg.SessionID)
	case ControlSessionEnd:
		b.controller.EndSession(deviceID, msg.SessionID)
	case ControlPlaybackAck:
		b.controller.PlaybackAck(deviceID, msg.SessionID)
	default:
		b.logger.Warn("unknown control message type dropped",
			zap.String("device_id", deviceID),
			zap.String("type", msg.Type))
	}
}

func deviceFromControlTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[2] != "control" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// lifecycleNotification is the JSON body published on session state changes.
type lifecycleNotification struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	State     string `json:"state"`
	Outcome   string `json:"outcome,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SessionChanged publishes a lifecycle notification. It satisfies the session
// layer's Notifier and never blocks the caller.
func (b *ControlBus) SessionChanged(session entities.Session) {
	go func() {
		payload, err := json.Marshal(lifecycleNotification{
			SessionID: session.ID,
			DeviceID:  session.DeviceID,
			State:     string(session.State),
			Outcome:   string(session.Outcome),
			Timestamp: time.Now().Unix(),
		})
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := b.cm.Publish(ctx, &paho.Publish{
			Topic:   lifecycleTopicPrefix + string(session.State),
			QoS:     0,
			Payload: payload,
		}); err != nil {
			b.logger.Debug("lifecycle publish failed", zap.Error(err))
		}
	}()
}

// Close disconnects from the broker.
func (b *ControlBus) Close(ctx context.Context) error {
	return b.cm.Disconnect(ctx)
}
