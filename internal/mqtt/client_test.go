// client_test.go: unit tests for the paho client wrapper, plus an optional
// round trip against the public mosquitto test broker.
package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

func isMosquittoTestServerAvailable() bool {
	conn, err := net.DialTimeout("tcp", "test.mosquitto.org:1883", 5*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func createTestClient(t *testing.T, broker string) (*client, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "fieldscan-test"
	c, err := NewClientWithConfig(cfg, m)
	require.NoError(t, err)
	return c.(*client), m
}

func TestNewClientRequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(&conf.Settings{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewClientFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.Name = "north-field"
	settings.MQTT.Broker = "tcp://localhost:1883"
	settings.MQTT.Username = "user"
	settings.MQTT.Retain = true

	c, err := NewClient(settings, nil)
	require.NoError(t, err)

	cfg := c.(*client).config
	assert.Equal(t, "fieldscan-north-field", cfg.ClientID)
	assert.Equal(t, "fieldscan", cfg.Topic, "empty topic falls back to the default")
	assert.Equal(t, "user", cfg.Username)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.False(t, c.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()
	c, m := createTestClient(t, "tcp://localhost:1883")

	err := c.Publish(t.Context(), "fieldscan/runs", "{}")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 0)
}

func TestConnectInvalidBrokerAndCooldown(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "://missing-scheme")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))

	err = c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
	assert.False(t, c.IsConnected())
}

func TestDisconnectWithoutConnect(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "tcp://localhost:1883")
	assert.NotPanics(t, c.Disconnect)
}

// doneToken is a completed paho token.
type doneToken struct {
	mqtt.Token
	done chan struct{}
}

func (t doneToken) Done() <-chan struct{} { return t.done }

func TestWaitToken(t *testing.T) {
	t.Parallel()

	closed := make(chan struct{})
	close(closed)
	assert.True(t, waitToken(t.Context(), doneToken{done: closed}, time.Second))

	pending := doneToken{done: make(chan struct{})}
	assert.False(t, waitToken(t.Context(), pending, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.False(t, waitToken(ctx, pending, time.Minute))
}

func TestMQTTBrokerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}
	if !isMosquittoTestServerAvailable() {
		t.Skip("Skipping MQTT tests: test.mosquitto.org is not available")
	}

	c, m := createTestClient(t, "tcp://test.mosquitto.org:1883")
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Publish(ctx, "fieldscan/test", "hello"))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.MessagesDelivered), 0)

	c.Disconnect()
	assert.False(t, c.IsConnected())
}
