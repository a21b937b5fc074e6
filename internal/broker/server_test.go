package broker

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func startTestServer(t *testing.T) (*Server, config.BrokerConfig) {
	t.Helper()
	cfg := config.BrokerConfig{
		TCPHost:  "127.0.0.1",
		TCPPort:  freePort(t),
		HTTPHost: "127.0.0.1",
		HTTPPort: 0,
	}

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, cfg
}

func connectClient(t *testing.T, cfg config.BrokerConfig, id string) paho.Client {
	t.Helper()
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + net.JoinHostPort(cfg.TCPHost, strconv.Itoa(cfg.TCPPort))).
		SetClientID(id).
		SetConnectTimeout(5 * time.Second)
	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := startTestServer(t)

	var body map[string]string
	code := getJSON(t, "http://"+s.HTTPAddr()+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	s, cfg := startTestServer(t)

	sub := connectClient(t, cfg, "edge")
	received := make(chan string, 4)
	token := sub.Subscribe("sensors/#", 0, func(_ paho.Client, msg paho.Message) {
		received <- msg.Topic() + "=" + string(msg.Payload())
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	pub := connectClient(t, cfg, "simulator")
	token = pub.Publish("sensors/s1", 0, false, "23.5")
	require.True(t, token.WaitTimeout(5*time.Second))

	select {
	case got := <-received:
		assert.Equal(t, "sensors/s1=23.5", got)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not receive the reading")
	}

	require.Eventually(t, func() bool {
		return s.GetStats().PublishesByTopic["sensors/s1"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	var stats Stats
	code := getJSON(t, "http://"+s.HTTPAddr()+"/stats", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), stats.ClientsConnected)
	assert.Equal(t, []string{"sensors/s1"}, stats.Topics)
	assert.GreaterOrEqual(t, stats.Subscriptions, int64(1))
}

func TestInlinePublish(t *testing.T) {
	s, cfg := startTestServer(t)

	sub := connectClient(t, cfg, "edge")
	received := make(chan []byte, 1)
	token := sub.Subscribe("smart_home/temperature", 0, func(_ paho.Client, msg paho.Message) {
		received <- msg.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))

	require.NoError(t, s.Publish("smart_home/temperature", []byte(`{"sensor_id":"s2","temperature":30}`), false, 0))

	select {
	case got := <-received:
		assert.JSONEq(t, `{"sensor_id":"s2","temperature":30}`, string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not receive the injected message")
	}
}

func TestStopClosesListeners(t *testing.T) {
	cfg := config.BrokerConfig{TCPHost: "127.0.0.1", TCPPort: freePort(t), HTTPHost: "127.0.0.1"}
	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	addr := s.HTTPAddr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}
