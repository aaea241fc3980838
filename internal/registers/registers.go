package registers

import (
	"errors"
	"fmt"
	"math"

	"solarsim/internal/model"
)

// Metric is the machine-readable identity of one telemetry quantity. Every
// map entry carries its Metric explicitly; nothing is ever inferred from a
// display string.
type Metric uint8

const (
	MetricPowerKW Metric = iota
	MetricVoltageL1V
	MetricCurrentL1A
	MetricFrequencyHz
	MetricCellTempC
	MetricStatus
	MetricVoltageL2V
	MetricVoltageL3V
	MetricCurrentL2A
	MetricCurrentL3A
	MetricReactivePowerKvar
	MetricApparentPowerKva
	MetricPowerFactor
	MetricRocofHzS
	MetricDCVoltageV
	MetricDCCurrentA
	MetricDCPowerKW
	MetricMPPTVoltageV
	MetricMPPTCurrentA
	MetricInverterTempC
	MetricAmbientTempC
	MetricEfficiencyPct
	MetricPOAIrradianceWM2
	MetricSolarElevationDeg
	MetricPerformanceRatio
	MetricSpecificYield
	MetricCapacityFactorPct
	MetricIsolationMohm
	MetricFaultCode
	MetricAlarmFlags
	MetricDailyEnergyKWh
	MetricMonthlyEnergyKWh
	MetricTotalEnergyKWh

	metricCount
)

// Encoding selects the wire representation of a metric.
type Encoding uint8

const (
	// Float32BigEndian stores the IEEE-754 single-precision bits across two
	// registers, high-order word first.
	Float32BigEndian Encoding = iota
	// UInt16Raw stores the value rounded and clamped into [0, 65535] in one
	// register, no scaling.
	UInt16Raw
)

func (e Encoding) Registers() uint16 {
	if e == Float32BigEndian {
		return 2
	}
	return 1
}

func (e Encoding) String() string {
	if e == Float32BigEndian {
		return "float32 IEEE-754 BE"
	}
	return "u16 raw"
}

const (
	// BlockSize is the fixed register count reserved per plant, regardless of
	// how many metrics currently occupy it.
	BlockSize = 63
	// PlantStride separates consecutive plant base addresses.
	PlantStride = 200
)

// MaxPlants is the largest fleet whose blocks all fit in the 16-bit space.
const MaxPlants = (1 << 16) / PlantStride

type layoutRow struct {
	Metric      Metric
	Offset      uint16
	Encoding    Encoding
	Unit        string
	Description string
}

// layout is the documented per-plant register table. Offsets cover 0..62
// contiguously with no gaps and no overlaps; changing it is a wire-contract
// break for every connected SCADA client.
var layout = []layoutRow{
	{MetricPowerKW, 0, Float32BigEndian, "kW", "Active power"},
	{MetricVoltageL1V, 2, Float32BigEndian, "V", "AC voltage L1"},
	{MetricCurrentL1A, 4, Float32BigEndian, "A", "AC current L1"},
	{MetricFrequencyHz, 6, Float32BigEndian, "Hz", "Grid frequency"},
	{MetricCellTempC, 8, Float32BigEndian, "degC", "Cell temperature"},
	{MetricStatus, 10, UInt16Raw, "", "Inverter status (enum 0-5)"},
	{MetricVoltageL2V, 11, Float32BigEndian, "V", "AC voltage L2"},
	{MetricVoltageL3V, 13, Float32BigEndian, "V", "AC voltage L3"},
	{MetricCurrentL2A, 15, Float32BigEndian, "A", "AC current L2"},
	{MetricCurrentL3A, 17, Float32BigEndian, "A", "AC current L3"},
	{MetricReactivePowerKvar, 19, Float32BigEndian, "kvar", "Reactive power Q"},
	{MetricApparentPowerKva, 21, Float32BigEndian, "kVA", "Apparent power S"},
	{MetricPowerFactor, 23, Float32BigEndian, "", "Power factor cos phi"},
	{MetricRocofHzS, 25, Float32BigEndian, "Hz/s", "ROCOF (df/dt)"},
	{MetricDCVoltageV, 27, Float32BigEndian, "V", "DC link voltage"},
	{MetricDCCurrentA, 29, Float32BigEndian, "A", "DC string current"},
	{MetricDCPowerKW, 31, Float32BigEndian, "kW", "DC input power"},
	{MetricMPPTVoltageV, 33, Float32BigEndian, "V", "MPPT operating voltage"},
	{MetricMPPTCurrentA, 35, Float32BigEndian, "A", "MPPT operating current"},
	{MetricInverterTempC, 37, Float32BigEndian, "degC", "Inverter heatsink temperature"},
	{MetricAmbientTempC, 39, Float32BigEndian, "degC", "Ambient temperature"},
	{MetricEfficiencyPct, 41, Float32BigEndian, "%", "Inverter efficiency"},
	{MetricPOAIrradianceWM2, 43, Float32BigEndian, "W/m2", "Plane-of-array irradiance"},
	{MetricSolarElevationDeg, 45, Float32BigEndian, "deg", "Solar elevation angle"},
	{MetricPerformanceRatio, 47, Float32BigEndian, "", "Performance ratio (IEC 61724)"},
	{MetricSpecificYield, 49, Float32BigEndian, "kWh/kWp", "Specific yield"},
	{MetricCapacityFactorPct, 51, Float32BigEndian, "%", "Capacity factor"},
	{MetricIsolationMohm, 53, Float32BigEndian, "MOhm", "Isolation resistance DC-GND"},
	{MetricFaultCode, 55, UInt16Raw, "", "Active fault code"},
	{MetricAlarmFlags, 56, UInt16Raw, "", "Alarm bitmask"},
	{MetricDailyEnergyKWh, 57, Float32BigEndian, "kWh", "Energy today"},
	{MetricMonthlyEnergyKWh, 59, Float32BigEndian, "kWh", "Energy this month"},
	{MetricTotalEnergyKWh, 61, Float32BigEndian, "kWh", "Lifetime energy"},
}

// ErrAddressOutOfRange reports a register address outside every plant block.
var ErrAddressOutOfRange = errors.New("register address out of range")

// Entry describes one mapped metric of one plant.
type Entry struct {
	PlantID     string   `json:"plant_id"`
	Metric      Metric   `json:"metric"`
	Encoding    Encoding `json:"-"`
	Address     uint16   `json:"register_address"`
	Registers   uint16   `json:"length"`
	DataType    string   `json:"data_type"`
	Unit        string   `json:"unit,omitempty"`
	Description string   `json:"description"`
}

type wordRef struct {
	entry int
	word  uint8 // 0 = high word, 1 = low word
}

// Map is the total static mapping from register address to
// (plant, metric, encoding). Built once at startup, read-only afterwards.
type Map struct {
	entries   []Entry
	byAddress map[uint16]wordRef
}

// Build lays out one fixed 63-register block per plant, in configuration
// order, at base address index*PlantStride.
func Build(plantIDs []string) (*Map, error) {
	if len(plantIDs) == 0 {
		return nil, errors.New("register map requires at least one plant")
	}
	if len(plantIDs) > MaxPlants {
		return nil, fmt.Errorf("%d plants exceed the register address space (max %d)", len(plantIDs), MaxPlants)
	}

	m := &Map{byAddress: make(map[uint16]wordRef, len(plantIDs)*BlockSize)}
	for k, id := range plantIDs {
		base := uint16(k * PlantStride)
		for _, row := range layout {
			end := row.Offset + row.Encoding.Registers() - 1
			if end >= BlockSize {
				return nil, fmt.Errorf("metric %s at offset %d spills past the %d-register block", row.Metric, row.Offset, BlockSize)
			}
			e := Entry{
				PlantID:     id,
				Metric:      row.Metric,
				Encoding:    row.Encoding,
				Address:     base + row.Offset,
				Registers:   row.Encoding.Registers(),
				DataType:    row.Encoding.String(),
				Unit:        row.Unit,
				Description: row.Description,
			}
			idx := len(m.entries)
			m.entries = append(m.entries, e)
			for w := uint16(0); w < e.Registers; w++ {
				addr := e.Address + w
				if _, dup := m.byAddress[addr]; dup {
					return nil, fmt.Errorf("register %d assigned twice (plant %s, metric %s)", addr, id, row.Metric)
				}
				m.byAddress[addr] = wordRef{entry: idx, word: uint8(w)}
			}
		}
	}
	return m, nil
}

// Resolve maps an address to its entry and word index (0 = high word).
func (m *Map) Resolve(addr uint16) (Entry, uint8, error) {
	ref, ok := m.byAddress[addr]
	if !ok {
		return Entry{}, 0, fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr)
	}
	return m.entries[ref.entry], ref.word, nil
}

// Entries returns the full map in address order, for client self-configuration.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// EncodeFloat32 splits the IEEE-754 bits into two words, high word first.
func EncodeFloat32(v float32) (hi, lo uint16) {
	bits := math.Float32bits(v)
	return uint16(bits >> 16), uint16(bits & 0xFFFF)
}

// DecodeFloat32 is the exact inverse of EncodeFloat32 for every finite value.
func DecodeFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// EncodeUint16 rounds and clamps into [0, 65535]. Clamping, never wraparound:
// the historical scaled-integer scheme corrupted out-of-range values and this
// is the guard against that class of bug. The second return reports whether
// clamping occurred.
func EncodeUint16(v float64) (uint16, bool) {
	r := math.Round(v)
	switch {
	case math.IsNaN(r), r < 0:
		return 0, true
	case r > 65535:
		return 65535, true
	}
	return uint16(r), false
}

// Value extracts the metric's current value from a telemetry record.
func Value(rec *model.TelemetryRecord, metric Metric) float64 {
	switch metric {
	case MetricPowerKW:
		return rec.PowerKW
	case MetricVoltageL1V:
		return rec.VoltageL1V
	case MetricCurrentL1A:
		return rec.CurrentL1A
	case MetricFrequencyHz:
		return rec.FrequencyHz
	case MetricCellTempC:
		return rec.CellTempC
	case MetricStatus:
		return float64(rec.Status)
	case MetricVoltageL2V:
		return rec.VoltageL2V
	case MetricVoltageL3V:
		return rec.VoltageL3V
	case MetricCurrentL2A:
		return rec.CurrentL2A
	case MetricCurrentL3A:
		return rec.CurrentL3A
	case MetricReactivePowerKvar:
		return rec.ReactivePowerKvar
	case MetricApparentPowerKva:
		return rec.ApparentPowerKva
	case MetricPowerFactor:
		return rec.PowerFactor
	case MetricRocofHzS:
		return rec.RocofHzS
	case MetricDCVoltageV:
		return rec.DCVoltageV
	case MetricDCCurrentA:
		return rec.DCCurrentA
	case MetricDCPowerKW:
		return rec.DCPowerKW
	case MetricMPPTVoltageV:
		return rec.MPPTVoltageV
	case MetricMPPTCurrentA:
		return rec.MPPTCurrentA
	case MetricInverterTempC:
		return rec.InverterTempC
	case MetricAmbientTempC:
		return rec.AmbientTempC
	case MetricEfficiencyPct:
		return rec.EfficiencyPct
	case MetricPOAIrradianceWM2:
		return rec.POAIrradianceWM2
	case MetricSolarElevationDeg:
		return rec.SolarElevationDeg
	case MetricPerformanceRatio:
		return rec.PerformanceRatio
	case MetricSpecificYield:
		return rec.SpecificYieldKWhKWp
	case MetricCapacityFactorPct:
		return rec.CapacityFactorPct
	case MetricIsolationMohm:
		return rec.IsolationResistanceMohm
	case MetricFaultCode:
		return float64(rec.FaultCode)
	case MetricAlarmFlags:
		// Wire contract is one register; all defined flags fit the low word.
		return float64(rec.AlarmFlags & 0xFFFF)
	case MetricDailyEnergyKWh:
		return rec.DailyEnergyKWh
	case MetricMonthlyEnergyKWh:
		return rec.MonthlyEnergyKWh
	case MetricTotalEnergyKWh:
		return rec.TotalEnergyKWh
	default:
		return 0
	}
}

func (m Metric) String() string {
	names := [...]string{
		"power_kw", "voltage_l1_v", "current_l1_a", "frequency_hz",
		"cell_temp_c", "status", "voltage_l2_v", "voltage_l3_v",
		"current_l2_a", "current_l3_a", "reactive_power_kvar",
		"apparent_power_kva", "power_factor", "rocof_hz_s", "dc_voltage_v",
		"dc_current_a", "dc_power_kw", "mppt_voltage_v", "mppt_current_a",
		"inverter_temp_c", "ambient_temp_c", "efficiency_percent",
		"poa_irradiance_w_m2", "solar_elevation_deg", "performance_ratio",
		"specific_yield_kwh_kwp", "capacity_factor_percent",
		"isolation_resistance_mohm", "fault_code", "alarm_flags",
		"daily_energy_kwh", "monthly_energy_kwh", "total_energy_kwh",
	}
	if int(m) < len(names) {
		return names[m]
	}
	return fmt.Sprintf("metric_%d", uint8(m))
}

// MarshalText lets the metric id appear by name in JSON map dumps.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
