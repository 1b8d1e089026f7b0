package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZones(t *testing.T) {
	zones, err := ParseZones(" zone-101:21.0:45, zone-102:23.5:50 ,zone-103:19.8:40,")
	require.NoError(t, err)
	assert.Equal(t, []ZoneSeed{
		{ID: "zone-101", Temperature: 21.0, Humidity: 45},
		{ID: "zone-102", Temperature: 23.5, Humidity: 50},
		{ID: "zone-103", Temperature: 19.8, Humidity: 40},
	}, zones)
}

func TestParseZonesRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"zone-101:21.0",
		"zone-101:abc:45",
		"zone-101:21:x",
		"zone/1:21:45",
		"+:21:45",
		"z:21:45,z:22:46",
	} {
		_, err := ParseZones(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadSimulatorDefaults(t *testing.T) {
	cfg, err := LoadSimulator()
	require.NoError(t, err)
	assert.Equal(t, "building-1", cfg.BuildingID)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Len(t, cfg.Zones, 3)
	assert.Equal(t, 0, cfg.OutboxLimit)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, time.Second, cfg.MQTT.ReconnectMin)
	assert.Equal(t, 32*time.Second, cfg.MQTT.ReconnectMax)
	assert.False(t, cfg.MQTT.TLSEnabled())
}

func TestLoadSimulatorFromEnv(t *testing.T) {
	t.Setenv("BUILDING_ID", "b7")
	t.Setenv("SIM_INTERVAL", "5") // sekundy bez jednotky
	t.Setenv("ZONES", "a:20:40")
	t.Setenv("OUTBOX_LIMIT", "500")
	t.Setenv("PATH_TO_ROOT", "/certs/ca.pem")
	t.Setenv("PATH_TO_CERT", "/certs/cert.pem")
	t.Setenv("PATH_TO_KEY", "/certs/key.pem")

	cfg, err := LoadSimulator()
	require.NoError(t, err)
	assert.Equal(t, "b7", cfg.BuildingID)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, []ZoneSeed{{ID: "a", Temperature: 20, Humidity: 40}}, cfg.Zones)
	assert.Equal(t, 500, cfg.OutboxLimit)
	assert.True(t, cfg.MQTT.TLSEnabled())
}

func TestLoaderCollectsAllErrors(t *testing.T) {
	t.Setenv("SIM_INTERVAL", "soon")
	t.Setenv("OUTBOX_LIMIT", "-1")
	t.Setenv("MQTT_QOS", "3")

	_, err := LoadSimulator()
	require.Error(t, err)
	for _, key := range []string{"SIM_INTERVAL", "OUTBOX_LIMIT", "MQTT_QOS"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadSimulatorRejectsNonPositiveMemoryInterval(t *testing.T) {
	for _, v := range []string{"0", "0s", "-5s"} {
		t.Setenv("MEMORY_CHECK_INTERVAL", v)
		_, err := LoadSimulator()
		assert.ErrorContains(t, err, "MEMORY_CHECK_INTERVAL", v)
	}
}

func TestLoadSimulatorRejectsBuildingSeparators(t *testing.T) {
	for _, v := range []string{"a:b", "b/1", "b+"} {
		t.Setenv("BUILDING_ID", v)
		_, err := LoadSimulator()
		assert.ErrorContains(t, err, "BUILDING_ID", v)
	}
}

func TestLoadBridge(t *testing.T) {
	cfg, err := LoadBridge()
	require.NoError(t, err)
	assert.Equal(t, QueueBlock, cfg.QueuePolicy)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.StreamForward)

	t.Setenv("WRITE_QUEUE_POLICY", "drop-oldest")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STREAM_FORWARD", "off")
	cfg, err = LoadBridge()
	require.NoError(t, err)
	assert.Equal(t, QueueDropOldest, cfg.QueuePolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.StreamForward)

	t.Setenv("WRITE_QUEUE_POLICY", "drop-newest")
	_, err = LoadBridge()
	assert.ErrorContains(t, err, "WRITE_QUEUE_POLICY")
}

func TestLoadDispatcherRequiresTwoAttempts(t *testing.T) {
	cfg, err := LoadDispatcher()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CommandRetry.Attempts)
	assert.True(t, cfg.ModelPreload)

	t.Setenv("COMMAND_RETRIES", "1")
	_, err = LoadDispatcher()
	assert.ErrorContains(t, err, "COMMAND_RETRIES")
}

func TestLoadAPIAndTrainer(t *testing.T) {
	api, err := LoadAPI()
	require.NoError(t, err)
	assert.Equal(t, "8080", api.HTTPPort)
	assert.Equal(t, time.Minute, api.CatalogRefresh)

	t.Setenv("TRAIN_WINDOW", "48h")
	tr, err := LoadTrainer()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, tr.Window)
	assert.Equal(t, "hvac_model.bin", tr.ModelOut)
}
