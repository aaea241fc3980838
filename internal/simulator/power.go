package simulator

import (
	"math"
	"time"

	"solarsim/config"
	"solarsim/internal/model"
)

// Electrical constants of the simulated inverter.
const (
	nominalPhaseVoltage = 230.0
	nominalFrequencyHz  = 50.0
	nominalDCVoltage    = 600.0
	// Below this fraction of nominal power the power factor is forced to 1.0
	// and currents to zero, so S = P/pf never divides by a near-zero pf.
	idleLoadFraction = 0.01
)

// ComputeTelemetry turns one environmental sample into a full telemetry
// record. It is a pure function: no I/O, no shared state, and identical
// arguments always produce an identical record. The timestamp feeds only the
// daily/monthly energy boundary logic, never randomness — every "noise" term
// is a trigonometric function of the power value itself.
func ComputeTelemetry(plant config.PlantConfig, loc *time.Location, sample model.EnvironmentSample, energy model.EnergyState, now time.Time) model.TelemetryRecord {
	g := math.Max(0, sample.IrradianceWM2)
	ambient := sample.AmbientTempC

	// Cell temperature, NOCT model: T_cell = T_amb + (NOCT-20) * G/800.
	cellTemp := ambient + (plant.NoctC-20.0)*(g/800.0)

	// AC active power: P = P_nom * (G/1000) * [1 + alpha*(T_cell - 25)].
	tempFactor := 1.0 + plant.TempCoeffPct*(cellTemp-25.0)
	powerKW := math.Max(0, plant.NominalPowerKW*(g/1000.0)*tempFactor)

	curtailed := false
	if plant.CurtailLimitKW > 0 && powerKW > plant.CurtailLimitKW {
		powerKW = plant.CurtailLimitKW
		curtailed = true
	}

	faulted := plant.FaultCode != 0
	if faulted {
		powerKW = 0
	}

	loadFactor := 0.0
	if plant.NominalPowerKW > 0 {
		loadFactor = powerKW / plant.NominalPowerKW
	}

	// Inverter conversion efficiency: poor at trickle power, peaks in the
	// mid-range, slightly derated when hot.
	var effLoad float64
	switch {
	case loadFactor < idleLoadFraction:
		effLoad = 0.0
	case loadFactor < 0.1:
		effLoad = 0.80 + (loadFactor/0.1)*0.15
	case loadFactor < 0.5:
		effLoad = 0.95 + ((loadFactor-0.1)/0.4)*0.03
	default:
		effLoad = 0.98 - ((loadFactor-0.5)/0.5)*0.01
	}
	tempLoss := math.Max(0, cellTemp-25.0) * 0.0005
	efficiency := math.Max(0, effLoad-tempLoss)

	rec := model.TelemetryRecord{
		Timestamp:         now,
		PowerKW:           powerKW,
		FrequencyHz:       nominalFrequencyHz + 0.05*math.Cos(powerKW*7.0),
		RocofHzS:          0.02 * math.Sin(powerKW*5.0),
		CellTempC:         cellTemp,
		AmbientTempC:      ambient,
		EfficiencyPct:     efficiency * 100.0,
		POAIrradianceWM2:  g,
		SolarElevationDeg: sample.SolarElevationDeg,
		CloudFactor:       sample.CloudFactor,
		WeatherCode:       sample.WeatherCode,
		IsDay:             sample.IsDay,
	}

	// Phase voltages: nominal with a load-dependent rise and a deterministic
	// noise term, all within the +-2% band.
	rec.VoltageL1V = nominalPhaseVoltage + loadFactor*4.0 + 0.5*math.Sin(powerKW*13.0)
	rec.VoltageL2V = nominalPhaseVoltage + loadFactor*4.0 + 0.5*math.Sin(powerKW*17.0)
	rec.VoltageL3V = nominalPhaseVoltage + loadFactor*4.0 + 0.5*math.Sin(powerKW*19.0)

	if loadFactor < idleLoadFraction {
		rec.PowerFactor = 1.0
		rec.ApparentPowerKva = powerKW
	} else {
		pf := 0.95 + 0.05*(1.0-math.Exp(-10.0*loadFactor)) + 0.005*math.Sin(powerKW*11.0)
		rec.PowerFactor = clamp(pf, 0.8, 1.0)
		rec.ApparentPowerKva = powerKW / rec.PowerFactor

		perPhaseVA := rec.ApparentPowerKva * 1000.0 / 3.0
		rec.CurrentL1A = perPhaseVA / rec.VoltageL1V
		rec.CurrentL2A = perPhaseVA / rec.VoltageL2V
		rec.CurrentL3A = perPhaseVA / rec.VoltageL3V
	}
	qsq := rec.ApparentPowerKva*rec.ApparentPowerKva - powerKW*powerKW
	if qsq > 0 {
		rec.ReactivePowerKvar = math.Sqrt(qsq)
	}

	// DC side: the panels deliver what the inverter converts at its current
	// efficiency. The MPPT operating point sits just below the DC bus.
	if efficiency > 0 {
		rec.DCPowerKW = powerKW / efficiency
	}
	rec.DCVoltageV = nominalDCVoltage + loadFactor*50.0 + 2.0*math.Sin(powerKW*3.0)
	rec.DCCurrentA = rec.DCPowerKW * 1000.0 / rec.DCVoltageV
	rec.MPPTVoltageV = rec.DCVoltageV * 0.985
	if rec.MPPTVoltageV > 0 {
		rec.MPPTCurrentA = rec.DCPowerKW * 1000.0 / rec.MPPTVoltageV
	}

	rec.InverterTempC = ambient + 8.0 + 28.0*loadFactor
	rec.IsolationResistanceMohm = clamp(10.0-0.06*math.Max(0, cellTemp-25.0), 1.2, 12.0)

	rec.Status = deriveStatus(faulted, curtailed, g, loadFactor)
	if faulted {
		rec.FaultCode = plant.FaultCode
	}

	rec.DailyEnergyKWh, rec.MonthlyEnergyKWh, rec.TotalEnergyKWh = accumulate(energy, powerKW, now, loc)

	// KPIs, IEC 61724.
	if g > 50.0 && plant.NominalPowerKW > 0 {
		theoretical := plant.NominalPowerKW * g / 1000.0
		rec.PerformanceRatio = clamp(powerKW/theoretical, 0, 1.5)
	}
	if plant.NominalPowerKW > 0 {
		rec.SpecificYieldKWhKWp = rec.DailyEnergyKWh / plant.NominalPowerKW
	}
	rec.CapacityFactorPct = loadFactor * 100.0

	return rec
}

func deriveStatus(faulted, curtailed bool, irradiance, loadFactor float64) model.Status {
	switch {
	case faulted:
		return model.StatusFault
	case curtailed:
		return model.StatusCurtail
	case irradiance < 1.0 || loadFactor <= 0.001:
		return model.StatusStop
	case loadFactor < 0.05:
		return model.StatusStart
	case loadFactor >= 0.75:
		return model.StatusMPPT
	default:
		return model.StatusRun
	}
}

// accumulate integrates P over the elapsed interval into the three counters,
// resetting daily and monthly totals at the plant's local midnight and month
// boundaries.
func accumulate(energy model.EnergyState, powerKW float64, now time.Time, loc *time.Location) (daily, monthly, total float64) {
	daily, monthly, total = energy.DailyKWh, energy.MonthlyKWh, energy.TotalKWh

	if energy.LastUpdate.IsZero() {
		return daily, monthly, total
	}

	local := now.In(loc)
	lastLocal := energy.LastUpdate.In(loc)
	if local.Year() != lastLocal.Year() || local.YearDay() != lastLocal.YearDay() {
		daily = 0
	}
	if local.Year() != lastLocal.Year() || local.Month() != lastLocal.Month() {
		monthly = 0
	}

	dt := now.Sub(energy.LastUpdate)
	if dt <= 0 {
		return daily, monthly, total
	}
	// A worker that was stalled for a long time must not credit the whole gap
	// at the current power level.
	if dt > 15*time.Minute {
		dt = 15 * time.Minute
	}

	kwh := powerKW * dt.Hours()
	return daily + kwh, monthly + kwh, total + kwh
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
