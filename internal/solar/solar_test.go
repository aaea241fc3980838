package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeterministic(t *testing.T) {
	now := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	a := Compute(45.07, 7.69, 1000, now)
	b := Compute(45.07, 7.69, 1000, now)
	assert.Equal(t, a, b)
}

func TestComputeSummerNoon(t *testing.T) {
	// Northern mid-latitude site around local solar noon on the solstice.
	now := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	est := Compute(45.07, 7.69, 1000, now)

	assert.Greater(t, est.SolarElevationDeg, 60.0)
	assert.True(t, est.IsDay)
	assert.Greater(t, est.GHIWM2, 300.0)
	assert.Greater(t, est.PowerKW, 150.0)
	assert.Less(t, est.PowerKW, 1200.0)
	assert.Greater(t, est.CellTempC, est.AmbientTempC)
	assert.True(t, est.CloudFactor >= 0.05 && est.CloudFactor <= 1.0)
	assert.True(t, est.SoilingFactor >= 0.85 && est.SoilingFactor <= 1.0)
}

func TestComputeNight(t *testing.T) {
	// Local midnight: the sun is below the horizon, output is exactly zero.
	now := time.Date(2026, 6, 21, 23, 0, 0, 0, time.UTC)
	est := Compute(45.07, 7.69, 1000, now)

	assert.Less(t, est.SolarElevationDeg, 0.0)
	assert.Zero(t, est.PowerKW)
	assert.Zero(t, est.GHIWM2)
	assert.False(t, est.IsDay)
	assert.Zero(t, est.WeatherCode)
}

func TestComputeWinterNoon(t *testing.T) {
	now := time.Date(2026, 12, 21, 11, 0, 0, 0, time.UTC)
	est := Compute(45.07, 7.69, 1000, now)

	// Solstice elevation at 45N is about 21.5 degrees.
	assert.InDelta(t, 21.5, est.SolarElevationDeg, 5.0)
	assert.True(t, est.IsDay)
	assert.Greater(t, est.PowerKW, 0.0)
	assert.Less(t, est.AmbientTempC, 15.0)
}

func TestComputeSouthernHemisphere(t *testing.T) {
	// December is midsummer in Melbourne.
	now := time.Date(2026, 12, 21, 2, 0, 0, 0, time.UTC)
	est := Compute(-37.81, 144.96, 1000, now)

	assert.Greater(t, est.SolarElevationDeg, 55.0)
	assert.True(t, est.IsDay)
	assert.Greater(t, est.PowerKW, 100.0)
}

func TestComputeScalesWithNominalPower(t *testing.T) {
	now := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	small := Compute(45.07, 7.69, 100, now)
	large := Compute(45.07, 7.69, 1000, now)

	assert.InDelta(t, small.PowerKW*10, large.PowerKW, 1e-6)
	assert.Equal(t, small.GHIWM2, large.GHIWM2)
}

func TestElevationMatchesCompute(t *testing.T) {
	now := time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)
	est := Compute(45.07, 7.69, 1000, now)
	assert.Equal(t, est.SolarElevationDeg, ElevationDeg(45.07, 7.69, now))
}

func TestNearbySlotsStayStable(t *testing.T) {
	// The broken-cloud transient is locked to 5-minute slots; within one slot
	// only the slow intraday drift moves the cloud factor.
	base := time.Date(2026, 6, 21, 11, 0, 30, 0, time.UTC)
	a := Compute(45.07, 7.69, 1000, base)
	b := Compute(45.07, 7.69, 1000, base.Add(90*time.Second))
	assert.InDelta(t, a.CloudFactor, b.CloudFactor, 0.01)
}
