package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryConfigPayload(t *testing.T) {
	topic, payload := discoveryConfig("solarsim", "turin-1", "Turin Rooftop", discoverySensor{
		Name: "Power", ID: "power_kw", Unit: "kW", DeviceClass: "power", StateTopic: "power_kw",
	})

	assert.Equal(t, "homeassistant/sensor/solarsim_turin-1/power_kw/config", topic)

	var config map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &config))
	assert.Equal(t, "Turin Rooftop Power", config["name"])
	assert.Equal(t, "solarsim_turin-1_power_kw", config["unique_id"])
	assert.Equal(t, "solarsim/turin-1/power_kw", config["state_topic"])
	assert.Equal(t, "kW", config["unit_of_measurement"])
	assert.Equal(t, "power", config["device_class"])
}

func TestDiscoveryConfigOmitsEmptyDeviceClass(t *testing.T) {
	_, payload := discoveryConfig("solarsim", "p1", "Plant One", discoverySensor{
		Name: "Power Factor", ID: "power_factor", StateTopic: "power_factor",
	})

	var config map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &config))
	assert.NotContains(t, config, "device_class")
}

func TestDisabledPublisherSkipsDiscovery(t *testing.T) {
	p := &Publisher{enabled: false}
	assert.NoError(t, p.PublishDiscovery("p1", "Plant One"))
}
