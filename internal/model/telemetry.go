package model

import "time"

// Status is the inverter operating state as it appears on the wire.
type Status uint16

const (
	StatusStop Status = iota
	StatusRun
	StatusFault
	StatusCurtail
	StatusStart
	StatusMPPT
)

func (s Status) String() string {
	switch s {
	case StatusStop:
		return "Stop"
	case StatusRun:
		return "Run"
	case StatusFault:
		return "Fault"
	case StatusCurtail:
		return "Curtail"
	case StatusStart:
		return "Start"
	case StatusMPPT:
		return "MPPT"
	default:
		return "Unknown"
	}
}

// TelemetryRecord mirrors a real grid-tied inverter data model: DC input
// (MPPT), 3-phase AC output, grid protection, thermal and energy accounting.
type TelemetryRecord struct {
	Timestamp time.Time `json:"timestamp"`

	// AC Output (3-phase)
	PowerKW           float64 `json:"power_kw"`
	VoltageL1V        float64 `json:"voltage_l1_v"`
	VoltageL2V        float64 `json:"voltage_l2_v"`
	VoltageL3V        float64 `json:"voltage_l3_v"`
	CurrentL1A        float64 `json:"current_l1_a"`
	CurrentL2A        float64 `json:"current_l2_a"`
	CurrentL3A        float64 `json:"current_l3_a"`
	FrequencyHz       float64 `json:"frequency_hz"`
	RocofHzS          float64 `json:"rocof_hz_s"`
	PowerFactor       float64 `json:"power_factor"`
	ReactivePowerKvar float64 `json:"reactive_power_kvar"`
	ApparentPowerKva  float64 `json:"apparent_power_kva"`

	// DC Input / MPPT
	DCVoltageV   float64 `json:"dc_voltage_v"`
	DCCurrentA   float64 `json:"dc_current_a"`
	DCPowerKW    float64 `json:"dc_power_kw"`
	MPPTVoltageV float64 `json:"mppt_voltage_v"`
	MPPTCurrentA float64 `json:"mppt_current_a"`

	// Thermal
	CellTempC     float64 `json:"cell_temp_c"`
	InverterTempC float64 `json:"inverter_temp_c"`
	AmbientTempC  float64 `json:"ambient_temp_c"`

	// Inverter metrics
	EfficiencyPct     float64 `json:"efficiency_percent"`
	POAIrradianceWM2  float64 `json:"poa_irradiance_w_m2"`
	SolarElevationDeg float64 `json:"solar_elevation_deg"`
	CloudFactor       float64 `json:"cloud_factor"`

	// Safety / grid protection
	IsolationResistanceMohm float64 `json:"isolation_resistance_mohm"`
	Status                  Status  `json:"status"`
	FaultCode               uint16  `json:"fault_code"`
	AlarmFlags              uint32  `json:"alarm_flags"`

	// Weather
	WeatherCode uint16 `json:"weather_code"`
	IsDay       bool   `json:"is_day"`

	// Energy counters
	DailyEnergyKWh   float64 `json:"daily_energy_kwh"`
	MonthlyEnergyKWh float64 `json:"monthly_energy_kwh"`
	TotalEnergyKWh   float64 `json:"total_energy_kwh"`

	// Performance KPIs (IEC 61724)
	PerformanceRatio    float64 `json:"performance_ratio"`
	SpecificYieldKWhKWp float64 `json:"specific_yield_kwh_kwp"`
	CapacityFactorPct   float64 `json:"capacity_factor_percent"`
}

// EnvironmentSample is a single observation consumed by the power model.
// Produced per tick by either the live weather feed or the offline
// solar-geometry estimator; never retained past the tick that uses it.
type EnvironmentSample struct {
	IrradianceWM2     float64   `json:"irradiance_w_m2"`
	AmbientTempC      float64   `json:"ambient_temp_c"`
	WeatherCode       uint16    `json:"weather_code"`
	IsDay             bool      `json:"is_day"`
	CloudFactor       float64   `json:"cloud_factor"`
	SolarElevationDeg float64   `json:"solar_elevation_deg"`
	Timestamp         time.Time `json:"timestamp"`
}

// EnergyState carries the accumulating counters between ticks.
type EnergyState struct {
	DailyKWh   float64   `json:"daily_kwh"`
	MonthlyKWh float64   `json:"monthly_kwh"`
	TotalKWh   float64   `json:"total_kwh"`
	LastUpdate time.Time `json:"last_update"`
}

// PlantState is the per-plant aggregate handed to readers. It is always a
// fully-formed snapshot; the store never exposes a partially written record.
type PlantState struct {
	PlantID    string          `json:"plant_id"`
	Record     TelemetryRecord `json:"record"`
	Alarms     []AlarmEvent    `json:"alarms"`
	LastUpdate time.Time       `json:"last_update"`
	Degraded   bool            `json:"degraded"`
	Stale      bool            `json:"stale"`
}
