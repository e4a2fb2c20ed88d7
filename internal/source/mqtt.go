package source

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/settle/internal/tracker"
)

// MQTTConfig configures an MQTT event subscription.
type MQTTConfig struct {
	Broker         string // e.g. tcp://localhost:1883
	Topic          string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// Subscriber enqueues events published on an MQTT topic.
type Subscriber struct {
	client mqtt.Client
	topic  string
	q      *tracker.Queue
}

// SubscribeMQTT connects to the broker and subscribes to cfg.Topic. Each
// message carries one event or a JSON array of events. Messages are
// handled in arrival order.
func SubscribeMQTT(cfg MQTTConfig, q *tracker.Queue) (*Subscriber, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	s := &Subscriber{topic: cfg.Topic, q: q}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	token = s.client.Subscribe(cfg.Topic, cfg.QoS, s.handle)
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		s.client.Disconnect(250)
		return nil, fmt.Errorf("subscribe to %s: timed out", cfg.Topic)
	}
	if err := token.Error(); err != nil {
		s.client.Disconnect(250)
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Topic, err)
	}

	slog.Info("subscribed to events", "broker", cfg.Broker, "topic", cfg.Topic, "qos", cfg.QoS)
	return s, nil
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	s.handlePayload(msg.Topic(), msg.Payload())
}

// handlePayload enqueues the events in one message and returns how many
// were accepted.
func (s *Subscriber) handlePayload(topic string, payload []byte) int {
	events, err := DecodeBatch(payload)
	if err != nil {
		slog.Warn("skipping malformed message", "topic", topic, "error", err)
		return 0
	}

	n := 0
	for _, ev := range events {
		if _, ok := s.q.Enqueue(ev); !ok {
			slog.Debug("queue closed, dropping message", "topic", topic)
			break
		}
		n++
	}
	return n
}

// Close unsubscribes and disconnects, allowing 250ms for in-flight work.
func (s *Subscriber) Close() {
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
	slog.Info("mqtt subscriber closed", "topic", s.topic)
}
