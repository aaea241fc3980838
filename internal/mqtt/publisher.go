package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"solarsim/internal/model"
)

// Publisher pushes every published telemetry record to an MQTT broker:
// individual per-field topics plus one full-JSON status topic per plant.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

func (p *Publisher) PublishTelemetry(plantID string, rec model.TelemetryRecord) error {
	if !p.enabled {
		return nil
	}

	topics := map[string]interface{}{
		"power_kw":       rec.PowerKW,
		"dc_power_kw":    rec.DCPowerKW,
		"energy_daily":   rec.DailyEnergyKWh,
		"energy_monthly": rec.MonthlyEnergyKWh,
		"energy_total":   rec.TotalEnergyKWh,
		"cell_temp":      rec.CellTempC,
		"inverter_temp":  rec.InverterTempC,
		"ambient_temp":   rec.AmbientTempC,
		"irradiance":     rec.POAIrradianceWM2,
		"frequency":      rec.FrequencyHz,
		"voltage_l1":     rec.VoltageL1V,
		"power_factor":   rec.PowerFactor,
		"efficiency":     rec.EfficiencyPct,
		"status":         rec.Status.String(),
		"fault_code":     rec.FaultCode,
		"alarm_flags":    rec.AlarmFlags,
		"is_day":         rec.IsDay,
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, plantID, name)
		token := p.client.Publish(topic, 0, false, fmt.Sprintf("%v", value))
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v", topic, token.Error())
		}
	}

	statusJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/status", p.topicPrefix, plantID)
	token := p.client.Publish(topic, 0, false, statusJSON)
	token.Wait()
	return token.Error()
}

// discoverySensor describes one Home Assistant sensor entity per plant.
type discoverySensor struct {
	Name        string
	ID          string
	Unit        string
	DeviceClass string
	StateTopic  string
}

var discoverySensors = []discoverySensor{
	{"Power", "power_kw", "kW", "power", "power_kw"},
	{"DC Power", "dc_power_kw", "kW", "power", "dc_power_kw"},
	{"Daily Energy", "energy_daily", "kWh", "energy", "energy_daily"},
	{"Total Energy", "energy_total", "kWh", "energy", "energy_total"},
	{"Cell Temperature", "cell_temp", "°C", "temperature", "cell_temp"},
	{"Irradiance", "irradiance", "W/m²", "irradiance", "irradiance"},
	{"Grid Voltage L1", "voltage_l1", "V", "voltage", "voltage_l1"},
	{"Grid Frequency", "frequency", "Hz", "frequency", "frequency"},
	{"Power Factor", "power_factor", "", "power_factor", "power_factor"},
}

// discoveryConfig builds the retained Home Assistant config payload for one
// sensor of one plant.
func discoveryConfig(prefix, plantID, plantName string, sensor discoverySensor) (topic string, payload []byte) {
	topic = fmt.Sprintf("homeassistant/sensor/solarsim_%s/%s/config", plantID, sensor.ID)

	config := map[string]interface{}{
		"name":                fmt.Sprintf("%s %s", plantName, sensor.Name),
		"unique_id":           fmt.Sprintf("solarsim_%s_%s", plantID, sensor.ID),
		"state_topic":         fmt.Sprintf("%s/%s/%s", prefix, plantID, sensor.StateTopic),
		"unit_of_measurement": sensor.Unit,
		"device": map[string]interface{}{
			"identifiers":  []string{fmt.Sprintf("solarsim_%s", plantID)},
			"name":         plantName,
			"manufacturer": "SolarSim",
			"model":        "Virtual PV Plant",
		},
	}
	if sensor.DeviceClass != "" {
		config["device_class"] = sensor.DeviceClass
	}

	payload, _ = json.Marshal(config)
	return topic, payload
}

// PublishDiscovery announces one plant's sensors to Home Assistant. Called
// once per plant after connecting; the messages are retained so the broker
// replays them to late subscribers.
func (p *Publisher) PublishDiscovery(plantID, plantName string) error {
	if !p.enabled {
		return nil
	}

	for _, sensor := range discoverySensors {
		topic, payload := discoveryConfig(p.topicPrefix, plantID, plantName, sensor)
		token := p.client.Publish(topic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("publish discovery %s: %w", topic, token.Error())
		}
	}
	return nil
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(250)
	}
}
