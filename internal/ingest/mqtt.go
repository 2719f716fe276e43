package ingest

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds MQTT source configuration.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "fleet/+/telemetry"
}

// MQTTSource feeds telemetry published over MQTT into the same pipeline
// queue as the UDP listener. Robots behind NAT or a restrictive network
// publish through a broker instead of sending raw datagrams; the payload
// format is identical.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	submit func([]byte) bool
}

// NewMQTTSource connects to the broker. submit is the pipeline intake,
// typically (*Server).Submit.
func NewMQTTSource(cfg MQTTConfig, submit func([]byte) bool) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Println("MQTT connected")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("Connected to MQTT broker:", cfg.Broker)
	return &MQTTSource{client: client, topic: cfg.Topic, submit: submit}, nil
}

// Subscribe starts consuming the telemetry topic.
func (m *MQTTSource) Subscribe() error {
	token := m.client.Subscribe(m.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if !m.submit(msg.Payload()) {
			log.Printf("MQTT telemetry from %s dropped: ingest queue full", msg.Topic())
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.topic, token.Error())
	}
	log.Printf("Subscribed to MQTT telemetry topic: %s", m.topic)
	return nil
}

// Close disconnects from the broker.
func (m *MQTTSource) Close() {
	m.client.Disconnect(250)
}
