package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarsim/config"
	"solarsim/internal/model"
)

func testPlant() config.PlantConfig {
	return config.PlantConfig{
		ID:             "plant-1",
		Name:           "Test Plant",
		Latitude:       45.07,
		Longitude:      7.69,
		NominalPowerKW: 1000,
		Timezone:       "UTC",
		NoctC:          45,
		TempCoeffPct:   -0.004,
	}
}

func stcSample() model.EnvironmentSample {
	return model.EnvironmentSample{
		IrradianceWM2: 1000,
		AmbientTempC:  25,
		IsDay:         true,
		CloudFactor:   1.0,
	}
}

func TestComputeTelemetryNominalConditions(t *testing.T) {
	now := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	rec := ComputeTelemetry(testPlant(), time.UTC, stcSample(), model.EnergyState{}, now)

	// NOCT cell temperature: 25 + (45-20) * 1000/800.
	assert.InDelta(t, 56.25, rec.CellTempC, 1e-9)

	// P = 1000 * 1.0 * (1 - 0.004 * 31.25) = 875 kW exactly.
	assert.InDelta(t, 875.0, rec.PowerKW, 1e-9)

	assert.Equal(t, model.StatusMPPT, rec.Status)
	assert.Zero(t, rec.FaultCode)
	assert.True(t, rec.PowerFactor >= 0.8 && rec.PowerFactor <= 1.0)
	assert.True(t, rec.VoltageL1V > 225 && rec.VoltageL1V < 235)
	assert.InDelta(t, 50.0, rec.FrequencyHz, 0.1)

	// DC side delivers the AC power divided by the conversion efficiency.
	require.Greater(t, rec.EfficiencyPct, 90.0)
	assert.InDelta(t, rec.PowerKW/(rec.EfficiencyPct/100.0), rec.DCPowerKW, 1e-9)
	assert.Greater(t, rec.DCPowerKW, rec.PowerKW)
}

func TestComputeTelemetryDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	sample := model.EnvironmentSample{IrradianceWM2: 412.7, AmbientTempC: 11.3, IsDay: true, CloudFactor: 0.6}
	energy := model.EnergyState{DailyKWh: 12.5, MonthlyKWh: 300, TotalKWh: 9000, LastUpdate: now.Add(-5 * time.Second)}

	a := ComputeTelemetry(testPlant(), time.UTC, sample, energy, now)
	b := ComputeTelemetry(testPlant(), time.UTC, sample, energy, now)
	assert.Equal(t, a, b)
}

func TestComputeTelemetryNight(t *testing.T) {
	now := time.Date(2026, 6, 21, 23, 0, 0, 0, time.UTC)
	sample := model.EnvironmentSample{IrradianceWM2: 0, AmbientTempC: 14}

	rec := ComputeTelemetry(testPlant(), time.UTC, sample, model.EnergyState{}, now)

	assert.Zero(t, rec.PowerKW)
	assert.Equal(t, model.StatusStop, rec.Status)
	assert.Equal(t, 1.0, rec.PowerFactor)
	assert.Zero(t, rec.CurrentL1A)
	assert.Zero(t, rec.CurrentL2A)
	assert.Zero(t, rec.CurrentL3A)
	assert.Zero(t, rec.DCPowerKW)
	assert.InDelta(t, 14.0, rec.CellTempC, 1e-9)
}

func TestComputeTelemetryNeverNegative(t *testing.T) {
	// A pathological temperature coefficient must clamp at zero, not go
	// negative.
	plant := testPlant()
	plant.TempCoeffPct = -0.1

	sample := stcSample()
	sample.AmbientTempC = 40

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	rec := ComputeTelemetry(plant, time.UTC, sample, model.EnergyState{}, now)
	assert.GreaterOrEqual(t, rec.PowerKW, 0.0)
}

func TestComputeTelemetryFault(t *testing.T) {
	plant := testPlant()
	plant.FaultCode = 507

	now := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	rec := ComputeTelemetry(plant, time.UTC, stcSample(), model.EnergyState{}, now)

	assert.Zero(t, rec.PowerKW)
	assert.Equal(t, model.StatusFault, rec.Status)
	assert.Equal(t, uint16(507), rec.FaultCode)
}

func TestComputeTelemetryCurtailment(t *testing.T) {
	plant := testPlant()
	plant.CurtailLimitKW = 500

	now := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	rec := ComputeTelemetry(plant, time.UTC, stcSample(), model.EnergyState{}, now)

	assert.InDelta(t, 500.0, rec.PowerKW, 1e-9)
	assert.Equal(t, model.StatusCurtail, rec.Status)
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name       string
		faulted    bool
		curtailed  bool
		irradiance float64
		loadFactor float64
		want       model.Status
	}{
		{"fault wins", true, true, 1000, 0.9, model.StatusFault},
		{"curtail before load bands", false, true, 1000, 0.9, model.StatusCurtail},
		{"dark is stop", false, false, 0, 0, model.StatusStop},
		{"trickle is stop", false, false, 5, 0.0005, model.StatusStop},
		{"low load is start", false, false, 50, 0.03, model.StatusStart},
		{"mid load runs", false, false, 400, 0.4, model.StatusRun},
		{"high load tracks mppt", false, false, 900, 0.8, model.StatusMPPT},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, deriveStatus(c.faulted, c.curtailed, c.irradiance, c.loadFactor))
		})
	}
}

func TestAccumulate(t *testing.T) {
	loc := time.UTC

	t.Run("first sample sets no energy", func(t *testing.T) {
		now := time.Date(2026, 6, 21, 12, 0, 0, 0, loc)
		d, m, tot := accumulate(model.EnergyState{}, 500, now, loc)
		assert.Zero(t, d)
		assert.Zero(t, m)
		assert.Zero(t, tot)
	})

	t.Run("integrates power over the interval", func(t *testing.T) {
		now := time.Date(2026, 6, 21, 12, 0, 5, 0, loc)
		energy := model.EnergyState{DailyKWh: 10, MonthlyKWh: 100, TotalKWh: 1000, LastUpdate: now.Add(-5 * time.Second)}

		d, m, tot := accumulate(energy, 720, now, loc)
		kwh := 720.0 * 5.0 / 3600.0
		assert.InDelta(t, 10+kwh, d, 1e-9)
		assert.InDelta(t, 100+kwh, m, 1e-9)
		assert.InDelta(t, 1000+kwh, tot, 1e-9)
	})

	t.Run("daily counter resets at local midnight", func(t *testing.T) {
		now := time.Date(2026, 6, 22, 0, 0, 5, 0, loc)
		energy := model.EnergyState{DailyKWh: 4200, MonthlyKWh: 100, TotalKWh: 1000, LastUpdate: now.Add(-10 * time.Second)}

		d, m, _ := accumulate(energy, 0, now, loc)
		assert.Zero(t, d)
		assert.Equal(t, 100.0, m)
	})

	t.Run("monthly counter resets at month boundary", func(t *testing.T) {
		now := time.Date(2026, 7, 1, 0, 0, 5, 0, loc)
		energy := model.EnergyState{DailyKWh: 4200, MonthlyKWh: 99000, TotalKWh: 1000, LastUpdate: now.Add(-10 * time.Second)}

		d, m, tot := accumulate(energy, 0, now, loc)
		assert.Zero(t, d)
		assert.Zero(t, m)
		assert.Equal(t, 1000.0, tot)
	})

	t.Run("reset honors the plant timezone", func(t *testing.T) {
		auckland, err := time.LoadLocation("Pacific/Auckland")
		require.NoError(t, err)

		// Crosses midnight in Auckland but not in UTC.
		now := time.Date(2026, 6, 21, 12, 0, 10, 0, time.UTC)
		energy := model.EnergyState{DailyKWh: 4200, LastUpdate: now.Add(-5 * time.Minute)}

		d, _, _ := accumulate(energy, 0, now, auckland)
		assert.Zero(t, d)

		d, _, _ = accumulate(energy, 0, now, time.UTC)
		assert.Equal(t, 4200.0, d)
	})

	t.Run("stalled worker credits at most fifteen minutes", func(t *testing.T) {
		now := time.Date(2026, 6, 21, 14, 0, 0, 0, loc)
		energy := model.EnergyState{TotalKWh: 1000, LastUpdate: now.Add(-2 * time.Hour)}

		_, _, tot := accumulate(energy, 800, now, loc)
		assert.InDelta(t, 1000+800*0.25, tot, 1e-9)
	})

	t.Run("clock going backwards adds nothing", func(t *testing.T) {
		now := time.Date(2026, 6, 21, 14, 0, 0, 0, loc)
		energy := model.EnergyState{TotalKWh: 1000, LastUpdate: now.Add(time.Minute)}

		_, _, tot := accumulate(energy, 800, now, loc)
		assert.Equal(t, 1000.0, tot)
	})
}
