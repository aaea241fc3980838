package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"solarsim/internal/model"
)

// StateReader is the slice of the state store the collector needs.
type StateReader interface {
	ListPlants() []string
	Get(plantID string) (model.PlantState, bool)
}

// Collector exposes the latest telemetry of every plant as Prometheus
// gauges. It reads the store on every scrape, so values are always the
// most recent snapshot without any extra bookkeeping.
type Collector struct {
	store StateReader

	powerKW       *prometheus.Desc
	dcPowerKW     *prometheus.Desc
	energyDaily   *prometheus.Desc
	energyMonthly *prometheus.Desc
	energyTotal   *prometheus.Desc
	irradiance    *prometheus.Desc
	cellTemp      *prometheus.Desc
	inverterTemp  *prometheus.Desc
	ambientTemp   *prometheus.Desc
	voltage       *prometheus.Desc
	frequency     *prometheus.Desc
	powerFactor   *prometheus.Desc
	efficiency    *prometheus.Desc
	perfRatio     *prometheus.Desc
	isolation     *prometheus.Desc
	status        *prometheus.Desc
	faultCode     *prometheus.Desc
	alarmFlags    *prometheus.Desc
	activeAlarms  *prometheus.Desc
	degraded      *prometheus.Desc
	stale         *prometheus.Desc
}

func NewCollector(store StateReader) *Collector {
	labels := []string{"plant"}
	return &Collector{
		store: store,

		powerKW: prometheus.NewDesc("solarsim_power_kw",
			"Current AC active power in kW", labels, nil),
		dcPowerKW: prometheus.NewDesc("solarsim_dc_power_kw",
			"Current DC power in kW", labels, nil),
		energyDaily: prometheus.NewDesc("solarsim_energy_daily_kwh",
			"Energy produced today in kWh", labels, nil),
		energyMonthly: prometheus.NewDesc("solarsim_energy_monthly_kwh",
			"Energy produced this month in kWh", labels, nil),
		energyTotal: prometheus.NewDesc("solarsim_energy_total_kwh",
			"Lifetime energy production in kWh", labels, nil),
		irradiance: prometheus.NewDesc("solarsim_irradiance_wm2",
			"Plane-of-array irradiance in W/m2", labels, nil),
		cellTemp: prometheus.NewDesc("solarsim_cell_temp_celsius",
			"Estimated cell temperature in degrees Celsius", labels, nil),
		inverterTemp: prometheus.NewDesc("solarsim_inverter_temp_celsius",
			"Inverter temperature in degrees Celsius", labels, nil),
		ambientTemp: prometheus.NewDesc("solarsim_ambient_temp_celsius",
			"Ambient temperature in degrees Celsius", labels, nil),
		voltage: prometheus.NewDesc("solarsim_voltage_ac_v",
			"AC phase voltage in V", []string{"plant", "phase"}, nil),
		frequency: prometheus.NewDesc("solarsim_grid_frequency_hz",
			"Grid frequency in Hz", labels, nil),
		powerFactor: prometheus.NewDesc("solarsim_power_factor",
			"Power factor", labels, nil),
		efficiency: prometheus.NewDesc("solarsim_efficiency_percent",
			"Inverter conversion efficiency in percent", labels, nil),
		perfRatio: prometheus.NewDesc("solarsim_performance_ratio",
			"Fleet-reported performance ratio", labels, nil),
		isolation: prometheus.NewDesc("solarsim_isolation_resistance_mohm",
			"DC isolation resistance in megaohm", labels, nil),
		status: prometheus.NewDesc("solarsim_status",
			"Operating status code (0=Stop 1=Run 2=Fault 3=Curtail 4=Start 5=MPPT)", labels, nil),
		faultCode: prometheus.NewDesc("solarsim_fault_code",
			"Active fault code, 0 when healthy", labels, nil),
		alarmFlags: prometheus.NewDesc("solarsim_alarm_flags",
			"Raw alarm flag bitmask", labels, nil),
		activeAlarms: prometheus.NewDesc("solarsim_active_alarms",
			"Number of currently active alarms", labels, nil),
		degraded: prometheus.NewDesc("solarsim_degraded",
			"1 when the plant runs on fallback environment data", labels, nil),
		stale: prometheus.NewDesc("solarsim_stale",
			"1 when the last update is older than twice the tick interval", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.powerKW
	ch <- c.dcPowerKW
	ch <- c.energyDaily
	ch <- c.energyMonthly
	ch <- c.energyTotal
	ch <- c.irradiance
	ch <- c.cellTemp
	ch <- c.inverterTemp
	ch <- c.ambientTemp
	ch <- c.voltage
	ch <- c.frequency
	ch <- c.powerFactor
	ch <- c.efficiency
	ch <- c.perfRatio
	ch <- c.isolation
	ch <- c.status
	ch <- c.faultCode
	ch <- c.alarmFlags
	ch <- c.activeAlarms
	ch <- c.degraded
	ch <- c.stale
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, plantID := range c.store.ListPlants() {
		st, ok := c.store.Get(plantID)
		if !ok {
			continue
		}
		rec := st.Record

		gauge := func(desc *prometheus.Desc, value float64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, plantID)
		}

		gauge(c.powerKW, rec.PowerKW)
		gauge(c.dcPowerKW, rec.DCPowerKW)
		gauge(c.energyDaily, rec.DailyEnergyKWh)
		gauge(c.energyMonthly, rec.MonthlyEnergyKWh)
		gauge(c.energyTotal, rec.TotalEnergyKWh)
		gauge(c.irradiance, rec.POAIrradianceWM2)
		gauge(c.cellTemp, rec.CellTempC)
		gauge(c.inverterTemp, rec.InverterTempC)
		gauge(c.ambientTemp, rec.AmbientTempC)
		for phase, v := range map[string]float64{
			"l1": rec.VoltageL1V,
			"l2": rec.VoltageL2V,
			"l3": rec.VoltageL3V,
		} {
			ch <- prometheus.MustNewConstMetric(c.voltage, prometheus.GaugeValue, v, plantID, phase)
		}
		gauge(c.frequency, rec.FrequencyHz)
		gauge(c.powerFactor, rec.PowerFactor)
		gauge(c.efficiency, rec.EfficiencyPct)
		gauge(c.perfRatio, rec.PerformanceRatio)
		gauge(c.isolation, rec.IsolationResistanceMohm)
		gauge(c.status, float64(rec.Status))
		gauge(c.faultCode, float64(rec.FaultCode))
		gauge(c.alarmFlags, float64(rec.AlarmFlags))

		active := 0
		for _, a := range st.Alarms {
			if a.Active {
				active++
			}
		}
		gauge(c.activeAlarms, float64(active))
		gauge(c.degraded, boolGauge(st.Degraded))
		gauge(c.stale, boolGauge(st.Stale))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
