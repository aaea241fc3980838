package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"solarsim/internal/registers"
)

type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Modbus      ModbusConfig    `mapstructure:"modbus"`
	Simulator   SimulatorConfig `mapstructure:"simulator"`
	MQTT        MQTTConfig      `mapstructure:"mqtt"`
	Database    DatabaseConfig  `mapstructure:"database"`
	OfflineMode bool            `mapstructure:"offline_mode"`
	Plants      []PlantConfig   `mapstructure:"plants"`
}

type ServerConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type ModbusConfig struct {
	Port       int           `mapstructure:"port"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxClients uint          `mapstructure:"max_clients"`
}

type SimulatorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PlantConfig is immutable after startup; the plant list is fixed for the
// process lifetime.
type PlantConfig struct {
	ID             string  `mapstructure:"id" json:"id"`
	Name           string  `mapstructure:"name" json:"name"`
	Latitude       float64 `mapstructure:"latitude" json:"latitude"`
	Longitude      float64 `mapstructure:"longitude" json:"longitude"`
	NominalPowerKW float64 `mapstructure:"nominal_power_kw" json:"nominal_power_kw"`
	Timezone       string  `mapstructure:"timezone" json:"timezone"`

	// Panel/thermal coefficients. Zero values are replaced by the c-Si
	// defaults (NOCT 45 degC, -0.4 %/degC) at load time.
	NoctC        float64 `mapstructure:"noct_c" json:"noct_c"`
	TempCoeffPct float64 `mapstructure:"temp_coeff_per_c" json:"temp_coeff_per_c"`

	// Simulation overrides: a non-zero fault code trips the plant into Fault,
	// a non-zero curtail limit caps AC output.
	FaultCode      uint16  `mapstructure:"fault_code" json:"fault_code,omitempty"`
	CurtailLimitKW float64 `mapstructure:"curtail_limit_kw" json:"curtail_limit_kw,omitempty"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/solarsim")
	}

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("modbus.port", 5020)
	viper.SetDefault("modbus.timeout", "30s")
	viper.SetDefault("modbus.max_clients", 20)
	viper.SetDefault("simulator.interval", "5s")
	viper.SetDefault("simulator.source_timeout", "4s")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "solarsim")
	viper.SetDefault("mqtt.client_id", "solarsim")
	viper.SetDefault("database.path", "./solarsim.db")
	viper.SetDefault("offline_mode", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Plants {
		if c.Plants[i].NoctC == 0 {
			c.Plants[i].NoctC = 45.0
		}
		if c.Plants[i].TempCoeffPct == 0 {
			c.Plants[i].TempCoeffPct = -0.004
		}
	}
	if c.Simulator.Interval <= 0 {
		c.Simulator.Interval = 5 * time.Second
	}
	if c.Simulator.SourceTimeout <= 0 || c.Simulator.SourceTimeout >= c.Simulator.Interval {
		c.Simulator.SourceTimeout = c.Simulator.Interval * 4 / 5
	}
}

// Validate rejects configurations that cannot produce a consistent register
// map or a runnable fleet. Any error here is fatal at startup, before a
// single listener is opened.
func (c *Config) Validate() error {
	if len(c.Plants) == 0 {
		return fmt.Errorf("config: no plants configured")
	}
	if len(c.Plants) > registers.MaxPlants {
		return fmt.Errorf("config: %d plants exceed the register address space (max %d)", len(c.Plants), registers.MaxPlants)
	}

	seen := make(map[string]struct{}, len(c.Plants))
	for _, p := range c.Plants {
		if p.ID == "" {
			return fmt.Errorf("config: plant with empty id")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("config: duplicate plant id %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.Latitude < -90 || p.Latitude > 90 {
			return fmt.Errorf("config: plant %s latitude %.4f out of range [-90, 90]", p.ID, p.Latitude)
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("config: plant %s longitude %.4f out of range [-180, 180]", p.ID, p.Longitude)
		}
		if p.NominalPowerKW <= 0 {
			return fmt.Errorf("config: plant %s nominal power must be positive, got %.2f", p.ID, p.NominalPowerKW)
		}
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("config: plant %s timezone %q: %w", p.ID, p.Timezone, err)
		}
	}

	if c.Modbus.Port <= 0 || c.Modbus.Port > 65535 {
		return fmt.Errorf("config: invalid modbus port %d", c.Modbus.Port)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid api port %d", c.Server.Port)
	}

	return nil
}

// PlantIDs returns plant ids in configuration order; this order fixes each
// plant's register block base address.
func (c *Config) PlantIDs() []string {
	ids := make([]string, len(c.Plants))
	for i, p := range c.Plants {
		ids[i] = p.ID
	}
	return ids
}
