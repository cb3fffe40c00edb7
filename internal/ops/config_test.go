package ops

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/schema"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4002", loaded.Gateway.Endpoint)
	assert.Equal(t, int32(1), loaded.Gateway.ClientID)
	assert.Nil(t, loaded.Gateway.TLS)
	assert.Equal(t, 5*time.Second, loaded.Session.Heartbeat)
	assert.Equal(t, 3, loaded.Session.MissLimit)
	assert.Equal(t, 500*time.Millisecond, loaded.Session.Backoff.Min)
	assert.Equal(t, 30*time.Second, loaded.Session.Backoff.Max)
	assert.Equal(t, 512, loaded.Feed.SubscriberDepth)
	assert.Equal(t, 256, loaded.Requests.Ceiling)
	assert.Equal(t, 5*time.Second, loaded.Requests.Timeout)
	assert.Equal(t, "./data/journal", loaded.Journal.Dir)
	assert.Equal(t, "tradegw", loaded.Redis.KeyPrefix)
	assert.Equal(t, "tradegw.orders", loaded.Kafka.Topic)
	assert.Empty(t, loaded.Status.Addr)

	assert.True(t, loaded.Features.Journal)
	assert.False(t, loaded.Features.Store)
	assert.False(t, loaded.Features.Redis)
	assert.False(t, loaded.Features.Kafka)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "gateway.json", `{
		"gateway": {"endpoint": "10.0.0.5:4100", "clientId": 7},
		"session": {"heartbeat": "2s", "backoffMin": "100ms", "backoffMax": "1s", "missLimit": 5},
		"feed": {"subscriptions": [{"symbol": "AAPL", "kind": "quotes"}, {"symbol": "ES"}]},
		"requests": {"ceiling": 32, "timeout": "750ms"},
		"journal": {"dir": "/var/lib/tradegw/journal", "queueSize": 16},
		"kafka": {"brokers": ["k1:9092", "k2:9092"], "topic": "fills"},
		"status": {"addr": "127.0.0.1:9095"},
		"features": {"enableKafka": true, "enableJournal": false}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:4100", loaded.Gateway.Endpoint)
	assert.Equal(t, int32(7), loaded.Gateway.ClientID)
	assert.Equal(t, 2*time.Second, loaded.Session.Heartbeat)
	assert.Equal(t, 5, loaded.Session.MissLimit)
	assert.Equal(t, 100*time.Millisecond, loaded.Session.Backoff.Min)
	assert.Equal(t, time.Second, loaded.Session.Backoff.Max)
	require.Len(t, loaded.Feed.Subscriptions, 2)
	assert.Equal(t, SubscriptionSetting{Symbol: "AAPL", Kind: schema.TickKindQuotes}, loaded.Feed.Subscriptions[0])
	assert.Equal(t, SubscriptionSetting{Symbol: "ES", Kind: schema.TickKindQuotes}, loaded.Feed.Subscriptions[1])
	assert.Equal(t, 32, loaded.Requests.Ceiling)
	assert.Equal(t, 750*time.Millisecond, loaded.Requests.Timeout)
	assert.Equal(t, "/var/lib/tradegw/journal", loaded.Journal.Dir)
	assert.Equal(t, 16, loaded.Journal.QueueSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, loaded.Kafka.Brokers)
	assert.Equal(t, "fills", loaded.Kafka.Topic)
	assert.Equal(t, "127.0.0.1:9095", loaded.Status.Addr)
	assert.True(t, loaded.Features.Kafka)
	assert.False(t, loaded.Features.Journal)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
gateway:
  endpoint: 192.168.1.20:4002
  clientId: 3
session:
  heartbeat: 1500ms
  writeQueueSize: 64
redis:
  addr: cache:6379
  keyPrefix: gw
  ttl: 10s
features:
  enableRedis: true
`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20:4002", loaded.Gateway.Endpoint)
	assert.Equal(t, int32(3), loaded.Gateway.ClientID)
	assert.Equal(t, 1500*time.Millisecond, loaded.Session.Heartbeat)
	assert.Equal(t, 64, loaded.Session.WriteQueueSize)
	assert.Equal(t, "cache:6379", loaded.Redis.Addr)
	assert.Equal(t, "gw", loaded.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Second, loaded.Redis.TTL)
	assert.True(t, loaded.Features.Redis)
}

func TestLoadTLS(t *testing.T) {
	path := writeConfig(t, "gateway.json", `{
		"gateway": {
			"endpoint": "gw.example.com:4002",
			"tls": {"enabled": true, "serverName": "gw.example.com", "insecureSkipVerify": true}
		}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Gateway.TLS)
	assert.Equal(t, "gw.example.com", loaded.Gateway.TLS.ServerName)
	assert.True(t, loaded.Gateway.TLS.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), loaded.Gateway.TLS.MinVersion)
}

func TestLoadTLSBadCA(t *testing.T) {
	ca := writeConfig(t, "ca.pem", "not a certificate")
	path := writeConfig(t, "gateway.json", fmt.Sprintf(
		`{"gateway": {"tls": {"enabled": true, "caFile": %q}}}`, ca))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "gateway.json", `{
		"gateway": {"endpoint": "10.0.0.5:4100", "clientId": 7},
		"session": {"heartbeat": "2s"}
	}`)

	t.Setenv("TRADEGW_ENDPOINT", "override:4200")
	t.Setenv("TRADEGW_CLIENT_ID", "42")
	t.Setenv("TRADEGW_HEARTBEAT", "9s")
	t.Setenv("TRADEGW_KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("TRADEGW_JOURNAL_DIR", "/mnt/journal")

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "override:4200", loaded.Gateway.Endpoint)
	assert.Equal(t, int32(42), loaded.Gateway.ClientID)
	assert.Equal(t, 9*time.Second, loaded.Session.Heartbeat)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, loaded.Kafka.Brokers)
	assert.Equal(t, "/mnt/journal", loaded.Journal.Dir)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad duration", `{"session": {"heartbeat": "fast"}}`},
		{"backoff inverted", `{"session": {"backoffMin": "5s", "backoffMax": "1s"}}`},
		{"store without database", `{"features": {"enableStore": true}, "store": {"user": "gw"}}`},
		{"kafka without brokers", `{"features": {"enableKafka": true}}`},
		{"negative ceiling", `{"requests": {"ceiling": -1}}`},
		{"subscription without symbol", `{"feed": {"subscriptions": [{"kind": "quotes"}]}}`},
		{"subscription bad kind", `{"feed": {"subscriptions": [{"symbol": "AAPL", "kind": "candles"}]}}`},
		{"tls cert without key", `{"gateway": {"tls": {"enabled": true, "certFile": "client.pem"}}}`},
		{"tls missing ca file", `{"gateway": {"tls": {"enabled": true, "caFile": "/nonexistent/ca.pem"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "gateway.json", tc.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
