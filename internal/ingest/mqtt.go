package ingest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

// MQTTSource subscribes to the sensor topics and records every valid reading.
// Subscriptions are (re)established on each connect, so the source survives
// broker restarts.
type MQTTSource struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	topics map[string]byte
	*pipeline
}

// NewMQTTSource builds a source for cfg. Nothing is connected until Start.
func NewMQTTSource(cfg config.MQTTConfig, recorder Recorder, logger *zap.SugaredLogger) (*MQTTSource, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker URL is required")
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", cfg.QoS)
	}
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}

	topics := make(map[string]byte, len(cfg.SensorTopics)+1)
	for _, t := range cfg.SensorTopics {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = byte(cfg.QoS)
		}
	}
	if cfg.SharedTopic != "" {
		topics[cfg.SharedTopic] = byte(cfg.QoS)
	}
	if len(topics) == 0 {
		return nil, errors.New("no mqtt topics configured")
	}

	s := &MQTTSource{
		cfg:      cfg,
		topics:   topics,
		pipeline: newPipeline(TransportMQTT, NewDecoder(cfg.SharedTopic), recorder, logger),
	}

	opts, err := s.clientOptions()
	if err != nil {
		return nil, err
	}
	s.client = mqtt.NewClient(opts)
	return s, nil
}

func (s *MQTTSource) clientOptions() (*mqtt.ClientOptions, error) {
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "edge-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warnw("Lost connection to broker", "broker", s.cfg.Broker, "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			s.log.Infow("Reconnecting to broker", "broker", s.cfg.Broker)
		})

	if s.cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	}
	if s.cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(s.cfg.MaxReconnectInterval)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	if s.cfg.TLS || isTLSBroker(s.cfg.Broker) {
		tlsCfg, err := NewTLSConfig(s.cfg.CAFile, s.cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// NewTLSConfig returns a client TLS config trusting the system roots plus the
// PEM certificates in caFile, when given.
func NewTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
	}
	return &tls.Config{
		RootCAs:            pool,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec
	}, nil
}

func isTLSBroker(broker string) bool {
	u, err := url.Parse(broker)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	}
	return false
}

// Start connects to the broker. If the broker is not reachable within the
// connect timeout, Start returns nil and the client keeps retrying in the
// background. Start fails only when the broker rejects the connection.
func (s *MQTTSource) Start(ctx context.Context) error {
	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.cfg.Broker, err)
		}
		s.log.Infow("Connected to broker", "broker", s.cfg.Broker, "topics", len(s.topics))
	case <-time.After(timeout):
		s.log.Warnw("Broker not reachable yet, retrying in background", "broker", s.cfg.Broker)
	case <-ctx.Done():
		s.client.Disconnect(0)
		return ctx.Err()
	}
	return nil
}

// onConnect subscribes to every configured topic. Paho calls it after the
// initial connect and after every automatic reconnect.
func (s *MQTTSource) onConnect(c mqtt.Client) {
	token := c.SubscribeMultiple(s.topics, func(_ mqtt.Client, msg mqtt.Message) {
		s.HandleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Errorw("Failed to subscribe", "topics", s.topicList(), "error", err)
			return
		}
		s.log.Infow("Subscribed", "topics", s.topicList(), "qos", s.cfg.QoS)
	}()
}

// HandleMessage decodes one message and records it.
func (s *MQTTSource) HandleMessage(topic string, payload []byte) bool {
	reading, err := s.decoder.Decode(topic, payload)
	if err != nil {
		err = fmt.Errorf("topic %s: %w", topic, err)
	}
	return s.accept(topic, reading, err)
}

// Stop disconnects, waiting up to 250ms for in-flight work.
func (s *MQTTSource) Stop() {
	s.client.Disconnect(250)
	s.log.Infow("Disconnected from broker", "broker", s.cfg.Broker)
}

// IsConnected reports whether the client currently holds a broker connection.
func (s *MQTTSource) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Stats returns the source counters.
func (s *MQTTSource) Stats() SourceStats {
	return s.stats(s.IsConnected())
}

func (s *MQTTSource) topicList() []string {
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}
