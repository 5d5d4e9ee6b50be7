package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/sos-trigger/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Username string
	Password string
	// BufferSize bounds the messages held while disconnected.
	BufferSize int
	// OnCommand is called for every valid message on the commands topic.
	OnCommand func(Command)
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are held in a replay
// buffer and sent again on reconnect.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	log       *slog.Logger
	onCommand func(Command)

	out      *outbox
	capacity int
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. It never blocks on the broker.
func NewRealPublisher(o Options, log *slog.Logger) *RealPublisher {
	if o.ClientID == "" {
		o.ClientID = "sos-trigger"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	p := &RealPublisher{
		topics:    NewTopics(o.Prefix),
		log:       log.With("component", "mqtt"),
		onCommand: o.OnCommand,
		out:       newOutbox(o.BufferSize),
		capacity:  o.BufferSize,
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.out.disconnected()
			p.log.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	p.log.Info("connecting to broker", "broker", o.Broker, "client_id", o.ClientID)
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	pending, reconnect := p.out.connected()

	p.log.Info("connected to broker", "reconnect", reconnect, "buffered", len(pending))

	c.Subscribe(p.topics.Commands, 1, p.handleMessage)

	// Publishing from the connect handler must not wait on tokens.
	go func() {
		if reconnect {
			payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
			if err := p.publish(p.topics.System, 1, true, payload); err != nil {
				p.log.Warn("publish reconnected event failed", "error", err)
			}
		}
		for _, m := range pending {
			if err := p.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
				p.log.Warn("replay failed", "topic", m.topic, "error", err)
			}
		}
	}()
}

func (p *RealPublisher) handleMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		p.log.Warn("ignoring command", "topic", msg.Topic(), "error", err)
		return
	}
	p.log.Info("command received", "command", cmd.Command, "reason", cmd.Reason)
	if p.onCommand != nil {
		p.onCommand(cmd)
	}
}

// publish sends a message, buffering it when the connection is down.
// QoS 0 messages are not worth replaying and are dropped instead.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	held, overflow := p.out.hold(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	if overflow {
		p.log.Warn("replay buffer full, dropping oldest", "capacity", p.capacity)
	}
	if held {
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishAction sends an action event (QoS 1, not retained).
func (p *RealPublisher) PublishAction(event logic.ActionEvent) error {
	payload, err := FormatActionPayload(event)
	if err != nil {
		return fmt.Errorf("format action payload: %w", err)
	}
	return p.publish(p.topics.Actions, 1, false, payload)
}

// PublishTick sends a countdown tick (QoS 0, not retained).
func (p *RealPublisher) PublishTick(event logic.TickEvent) error {
	payload, err := FormatTickPayload(event)
	if err != nil {
		return fmt.Errorf("format tick payload: %w", err)
	}
	return p.publish(p.topics.Ticks, 0, false, payload)
}

// PublishOutcome sends a session outcome (QoS 1, not retained).
func (p *RealPublisher) PublishOutcome(event logic.TerminalEvent) error {
	payload, err := FormatOutcomePayload(event)
	if err != nil {
		return fmt.Errorf("format outcome payload: %w", err)
	}
	return p.publish(p.topics.Outcomes, 1, false, payload)
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	return p.out.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
