package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/internal/ingest"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

// Message is one encoded reading. MQTT publishers use Topic; Kafka
// publishers write to their configured topic and use Key for partitioning.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// Publisher delivers encoded readings to a transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Name() string
	Close() error
}

// MQTTPublisher publishes readings with a paho client.
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	log    *zap.SugaredLogger
}

// NewMQTTPublisher connects to the configured broker, waiting at most the
// connect timeout.
func NewMQTTPublisher(ctx context.Context, cfg config.MQTTConfig, logger *zap.SugaredLogger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.QoS)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sim-" + uuid.NewString()[:8]
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnw("Lost connection to broker", "broker", cfg.Broker, "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS || cfg.CAFile != "" {
		tlsCfg, err := ingest.NewTLSConfig(cfg.CAFile, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
		}
	case <-time.After(timeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}

	logger.Infow("Connected to broker", "broker", cfg.Broker, "client_id", clientID)
	return &MQTTPublisher{cfg: cfg, client: client, log: logger}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	token := p.client.Publish(msg.Topic, byte(p.cfg.QoS), false, msg.Payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Name() string { return config.TransportMQTT }

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes readings to one Kafka topic keyed by sensor id, so
// every reading of a sensor lands on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// NewKafkaPublisher creates a synchronous writer for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.Key), Value: msg.Payload})
}

func (p *KafkaPublisher) Name() string { return config.TransportKafka }

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewPublisher builds the publisher for the configured transport.
func NewPublisher(ctx context.Context, cfg config.SimulatorConfig, logger *zap.SugaredLogger) (Publisher, error) {
	switch cfg.Transport {
	case config.TransportMQTT, "":
		return NewMQTTPublisher(ctx, cfg.MQTT, logger)
	case config.TransportKafka:
		return NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
