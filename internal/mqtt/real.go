package mqtt

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/thermo-dash/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 100

// RealPublisher publishes to an actual MQTT broker.
// Messages published while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string
	now    func() time.Time
	outbox *outbox
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	if clientID == "" {
		clientID = "thermo-dash"
	}
	p := &RealPublisher{
		topic:  Topic,
		now:    time.Now,
		outbox: newOutbox(DefaultBufferSize),
	}

	lwt, err := willPayload(time.Now())
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(lwt), 1, false).
		SetOnConnectHandler(func(paho.Client) { p.drain() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	p.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// willPayload is the OFFLINE event the broker publishes if the
// connection drops without a clean disconnect.
func willPayload(at time.Time) ([]byte, error) {
	return FormatSystemPayload(SystemEvent{Timestamp: at, Event: "OFFLINE", Reason: "LWT"})
}

// Publish sends an alert transition to the MQTT broker.
func (p *RealPublisher) Publish(tr logic.Transition) error {
	payload, err := FormatPayload(tr, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1: an alarm edge should not be lost
	return p.send(p.topic, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	if err := p.send(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending reports how many messages are waiting for the broker.
func (p *RealPublisher) Pending() int {
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.outbox.add(pending{topic: topic, payload: payload, qos: qos, retained: retained})
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// drain replays buffered messages in order. Runs from the paho connect handler.
func (p *RealPublisher) drain() {
	msgs := p.outbox.take()
	if len(msgs) == 0 {
		return
	}

	if d := p.outbox.droppedTotal(); d > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages (%d dropped so far)", len(msgs), d)
	} else {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	}
	for _, m := range msgs {
		// Not waiting on the token: the handler runs on paho's goroutine.
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}
