// Package broker provides an embedded MQTT broker for local development and tests.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

// Server wraps an MQTT broker with an HTTP server for health and stats.
type Server struct {
	mqtt       *mochi.Server
	hook       *statsHook
	httpServer *http.Server
	httpLn     net.Listener
	tcpAddr    string
	httpAddr   string
	started    time.Time
	wg         sync.WaitGroup
	logger     *zap.SugaredLogger
}

// Stats is the broker state reported on /stats.
type Stats struct {
	Uptime           string           `json:"uptime"`
	ClientsConnected int64            `json:"clients_connected"`
	ClientsTotal     int64            `json:"clients_total"`
	MessagesReceived int64            `json:"messages_received"`
	MessagesSent     int64            `json:"messages_sent"`
	MessagesDropped  int64            `json:"messages_dropped"`
	Retained         int64            `json:"retained"`
	Subscriptions    int64            `json:"subscriptions"`
	PublishesByTopic map[string]int64 `json:"publishes_by_topic"`
	Topics           []string         `json:"topics"`
}

// NewServer creates a broker listening on the configured TCP and HTTP addresses.
// Any client may connect and publish; the broker has no authentication.
func NewServer(cfg config.BrokerConfig, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		mqtt:     mochi.New(&mochi.Options{InlineClient: true}),
		hook:     &statsHook{log: logger, topics: make(map[string]int64)},
		tcpAddr:  fmt.Sprintf("%s:%d", cfg.TCPHost, cfg.TCPPort),
		httpAddr: fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		logger:   logger,
	}

	if err := s.mqtt.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add auth hook: %w", err)
	}
	if err := s.mqtt.AddHook(s.hook, nil); err != nil {
		return nil, fmt.Errorf("failed to add stats hook: %w", err)
	}
	if err := s.mqtt.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: s.tcpAddr})); err != nil {
		return nil, fmt.Errorf("failed to add listener on %s: %w", s.tcpAddr, err)
	}

	return s, nil
}

// Start starts the MQTT listener and the HTTP server.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpAddr, err)
	}
	s.httpLn = ln

	if err := s.mqtt.Serve(); err != nil {
		ln.Close()
		return fmt.Errorf("failed to start MQTT broker: %w", err)
	}
	s.started = time.Now()
	s.logger.Infow("MQTT broker listening", "address", s.tcpAddr)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("Broker HTTP listening", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the broker.
func (s *Server) Stop(ctx context.Context) error {
	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	mqttErr := s.mqtt.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if httpErr != nil {
		return httpErr
	}
	return mqttErr
}

// HTTPAddr returns the bound HTTP address, which differs from the configured
// one when port 0 was requested.
func (s *Server) HTTPAddr() string {
	if s.httpLn != nil {
		return s.httpLn.Addr().String()
	}
	return s.httpAddr
}

// Publish injects a message as if a client had published it.
func (s *Server) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return s.mqtt.Publish(topic, payload, retain, qos)
}

// GetStats returns a snapshot of broker counters.
func (s *Server) GetStats() Stats {
	info := s.mqtt.Info.Clone()
	byTopic, topics := s.hook.snapshot()

	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started).Round(time.Second)
	}

	return Stats{
		Uptime:           uptime.String(),
		ClientsConnected: info.ClientsConnected,
		ClientsTotal:     info.ClientsTotal,
		MessagesReceived: info.MessagesReceived,
		MessagesSent:     info.MessagesSent,
		MessagesDropped:  info.MessagesDropped,
		Retained:         info.Retained,
		Subscriptions:    info.Subscriptions,
		PublishesByTopic: byTopic,
		Topics:           topics,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.GetStats())
}

// statsHook logs client sessions and counts publishes per topic.
type statsHook struct {
	mochi.HookBase

	log    *zap.SugaredLogger
	mu     sync.Mutex
	topics map[string]int64
}

func (h *statsHook) ID() string {
	return "edge-stats"
}

func (h *statsHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnConnect,
		mochi.OnDisconnect,
		mochi.OnPublished,
	}, []byte{b})
}

func (h *statsHook) OnConnect(cl *mochi.Client, pk packets.Packet) error {
	h.log.Infow("Client connected", "client_id", cl.ID, "remote", cl.Net.Remote)
	return nil
}

func (h *statsHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	if err != nil {
		h.log.Infow("Client disconnected", "client_id", cl.ID, "error", err)
		return
	}
	h.log.Infow("Client disconnected", "client_id", cl.ID)
}

func (h *statsHook) OnPublished(cl *mochi.Client, pk packets.Packet) {
	h.mu.Lock()
	h.topics[pk.TopicName]++
	h.mu.Unlock()
}

func (h *statsHook) snapshot() (map[string]int64, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int64, len(h.topics))
	names := make([]string, 0, len(h.topics))
	for topic, n := range h.topics {
		counts[topic] = n
		names = append(names, topic)
	}
	sort.Strings(names)
	return counts, names
}
