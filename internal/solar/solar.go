// Package solar is the offline irradiance and power estimation engine.
//
// Pipeline: solar geometry (declination, equation of time, hour angle,
// elevation, azimuth), eccentricity-corrected extraterrestrial irradiance,
// simplified Bird & Hulstrom clear-sky model, panel tilt transposition,
// climatological cloud attenuation, ambient temperature / wind / humidity
// climatology, Faiman cell temperature and temperature-derated power.
//
// Everything is deterministic: all "noise" comes from integer hashes of
// (latitude, longitude, day-of-year, time slot), so two calls with the same
// arguments produce identical estimates.
package solar

import (
	"math"
	"time"
)

const (
	solarConstant = 1361.0 // W/m2
	deg           = math.Pi / 180.0
)

// Estimate is the full offline result for one instant at one site.
type Estimate struct {
	PowerKW             float64 `json:"power_kw"`
	GHIWM2              float64 `json:"ghi_w_m2"`
	CellTempC           float64 `json:"cell_temp_c"`
	AmbientTempC        float64 `json:"ambient_temp_c"`
	WeatherCode         uint16  `json:"weather_code"`
	IsDay               bool    `json:"is_day"`
	CloudFactor         float64 `json:"cloud_factor"`
	SolarElevationDeg   float64 `json:"solar_elevation_deg"`
	WindSpeedMS         float64 `json:"wind_speed_m_s"`
	RelativeHumidityPct float64 `json:"relative_humidity_pct"`
	SoilingFactor       float64 `json:"soiling_factor"`
}

// Compute estimates site conditions and plant output for the given UTC instant.
func Compute(latDeg, lonDeg, nominalPowerKW float64, now time.Time) Estimate {
	now = now.UTC()
	doy := float64(now.YearDay())
	utH := float64(now.Hour()) + float64(now.Minute())/60.0 + float64(now.Second())/3600.0

	geo := geometry(latDeg, lonDeg, doy, utH)

	// Extraterrestrial irradiance with eccentricity correction.
	b := 2.0 * math.Pi * (doy - 1.0) / 365.0
	e0 := solarConstant * (1.00011 +
		0.034221*math.Cos(b) +
		0.00128*math.Sin(b) +
		0.000719*math.Cos(2.0*b) +
		0.000077*math.Sin(2.0*b))

	ghiCS, dniCS := clearSky(latDeg, lonDeg, doy, geo, e0)

	// POA transposition: fixed tilt = |lat| capped at 60 deg, equator-facing.
	tiltDeg := math.Min(math.Abs(latDeg), 60.0)
	tilt := tiltDeg * deg
	surfAzDeg := 0.0
	if latDeg >= 0 {
		surfAzDeg = 180.0
	}
	azDiff := (geo.azimuthDeg - surfAzDeg) * deg
	cosTheta := 0.0
	if geo.elevationDeg > 0.1 {
		cosTheta = math.Max(0,
			math.Sin(geo.elevationRad)*math.Cos(tilt)+
				math.Cos(geo.elevationRad)*math.Sin(tilt)*math.Cos(azDiff))
	}
	beamPOA := dniCS * cosTheta
	dhiCS := math.Max(0, ghiCS-dniCS*math.Max(0, geo.sinElevation))
	diffusePOA := dhiCS * (1.0 + math.Cos(tilt)) / 2.0
	const albedo = 0.20
	reflectedPOA := ghiCS * albedo * (1.0 - math.Cos(tilt)) / 2.0
	poaCS := math.Max(0, beamPOA+diffusePOA+reflectedPOA)

	cloudBase := cloudAttenuation(latDeg, lonDeg, doy, geo.localSolarH)

	// Short-term broken-cloud transient, locked to a 5-minute slot so it is
	// stable within one update cycle.
	fiveMinSlot := int64(utH * 12.0)
	transSeed := int64(latDeg*100.0)*853 ^ int64(lonDeg*100.0)*619 ^ (int64(doy)*300+fiveMinSlot)*1031
	transVal := hash01(transSeed, 0x9e3779b97f4a7c15)
	cloudTransient := (transVal*2.0 - 1.0) * 0.18
	cloudFactor := clampF(cloudBase+cloudTransient, 0.05, 1.0)

	poa := poaCS * cloudFactor

	ambient := ambientTemperature(latDeg, doy, geo.localSolarH)
	wind := windSpeed(latDeg, lonDeg, doy, geo.localSolarH)
	humidity := relativeHumidity(latDeg, doy, geo.localSolarH)

	// Faiman (2008): T_cell = T_amb + G / (U0 + U1 * wind), crystalline Si.
	const u0, u1 = 25.0, 6.84
	cellTemp := ambient + poa/(u0+u1*wind)

	soiling := soilingFactor(latDeg, lonDeg, doy)

	const alphaTemp = -0.004
	tempFactor := 1.0 + alphaTemp*(cellTemp-25.0)
	effectiveGHI := poa * soiling
	powerKW := math.Max(0, nominalPowerKW*(effectiveGHI/1000.0)*tempFactor)

	return Estimate{
		PowerKW:             powerKW,
		GHIWM2:              poa,
		CellTempC:           cellTemp,
		AmbientTempC:        ambient,
		WeatherCode:         weatherCode(cloudFactor, geo.elevationDeg, doy, latDeg),
		IsDay:               geo.elevationDeg > 0 && poa > 0.5,
		CloudFactor:         cloudFactor,
		SolarElevationDeg:   geo.elevationDeg,
		WindSpeedMS:         wind,
		RelativeHumidityPct: humidity,
		SoilingFactor:       soiling,
	}
}

// ElevationDeg returns just the solar elevation angle, used by the live
// weather path to enrich samples with sun position.
func ElevationDeg(latDeg, lonDeg float64, now time.Time) float64 {
	now = now.UTC()
	doy := float64(now.YearDay())
	utH := float64(now.Hour()) + float64(now.Minute())/60.0 + float64(now.Second())/3600.0
	return geometry(latDeg, lonDeg, doy, utH).elevationDeg
}

type sunGeometry struct {
	elevationDeg float64
	elevationRad float64
	sinElevation float64
	azimuthDeg   float64
	localSolarH  float64
}

func geometry(latDeg, lonDeg, doy, utH float64) sunGeometry {
	b := 2.0 * math.Pi * (doy - 1.0) / 365.0

	// Declination, Spencer 1971.
	declDeg := (180.0 / math.Pi) * (0.006918 -
		0.399912*math.Cos(b) +
		0.070257*math.Sin(b) -
		0.006758*math.Cos(2.0*b) +
		0.000907*math.Sin(2.0*b) -
		0.002697*math.Cos(3.0*b) +
		0.00148*math.Sin(3.0*b))
	decl := declDeg * deg

	// Equation of time in minutes, Spencer 1971.
	eotMin := 229.18 * (0.000075 +
		0.001868*math.Cos(b) -
		0.032077*math.Sin(b) -
		0.014615*math.Cos(2.0*b) -
		0.04089*math.Sin(2.0*b))

	lstmDeg := 15.0 * math.Round(lonDeg/15.0)
	tcMin := 4.0*(lonDeg-lstmDeg) + eotMin
	utcOffsetH := math.Round(lonDeg / 15.0)
	localClockH := math.Mod(utH+utcOffsetH+24.0, 24.0)
	lstH := localClockH + tcMin/60.0

	omega := 15.0 * (lstH - 12.0) * deg

	lat := latDeg * deg
	sinAlpha := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(omega)
	alphaRad := math.Asin(sinAlpha)
	alphaDeg := alphaRad / deg

	cosAz := 0.0
	if math.Abs(math.Cos(alphaRad)) > 1e-9 {
		cosAz = (math.Sin(decl) - sinAlpha*math.Sin(lat)) / (math.Cos(alphaRad) * math.Cos(lat))
	}
	azAbs := math.Acos(clampF(cosAz, -1.0, 1.0)) / deg
	azimuthDeg := azAbs
	if omega > 0 {
		azimuthDeg = 360.0 - azAbs
	}

	return sunGeometry{
		elevationDeg: alphaDeg,
		elevationRad: alphaRad,
		sinElevation: sinAlpha,
		azimuthDeg:   azimuthDeg,
		localSolarH:  lstH,
	}
}

func clearSky(latDeg, lonDeg, doy float64, geo sunGeometry, e0 float64) (ghi, dni float64) {
	if geo.elevationDeg <= 0.1 {
		return 0, 0
	}

	// Air mass, Kasten & Young 1989.
	am := 1.0 / (geo.sinElevation + 0.50572*math.Pow(geo.elevationDeg+6.07995, -1.6364))
	am = math.Max(am, 1.0)

	// Simplified Bird & Hulstrom transmittances.
	tr := math.Exp(-0.0903 * math.Pow(am, 0.84) * (1.0 + am - math.Pow(am, 1.01)))
	to := 1.0 - 0.0013*am

	// Linke turbidity: continental baseline, seasonal swing, deterministic
	// daily aerosol noise (wind events, fires, dust storms).
	var seasonTurb float64
	if latDeg >= 0 {
		seasonTurb = 2.5 + 0.8*(-math.Cos(2.0*math.Pi*(doy-200.0)/365.0))
	} else {
		seasonTurb = 2.5 + 0.8*math.Cos(2.0*math.Pi*(doy-20.0)/365.0)
	}
	turbSeed := int64(latDeg*50.0)*503 ^ int64(lonDeg*50.0)*719 ^ int64(doy)*1237
	turbNoise := hash01(turbSeed, 0x517cc1b727220a95)
	tk := clampF(seasonTurb+(turbNoise-0.5)*1.4, 1.5, 6.5)
	ta := math.Exp(-0.09 * math.Pow(tk, 0.978) * math.Pow(am, 0.9455))
	tw := 1.0 - 0.0075*math.Pow(am, 0.65)

	totalT := tr * to * ta * tw
	dni = 0.9762 * e0 * totalT
	dhi := 0.79 * e0 * geo.sinElevation * (1.0 - totalT) *
		(0.5*(1.0-tr) + backScatter(ta)) /
		(1.0 - am + math.Pow(am, 1.02))
	ghi = math.Max(0, dni*geo.sinElevation+dhi)
	return ghi, dni
}

// backScatter approximates the Bird (1981) back-scatter term.
func backScatter(ta float64) float64 {
	return 0.5 * clampF(0.92-math.Abs(math.Log(ta))/10.0, 0.2, 0.5)
}

// cloudAttenuation returns the fraction of clear-sky GHI reaching the panel:
// a latitude/season baseline, deterministic day-to-day scatter, and a slight
// afternoon cloud build-up typical of continental climates.
func cloudAttenuation(latDeg, lonDeg, doy, lstH float64) float64 {
	var seasonPhase float64
	if latDeg >= 0 {
		seasonPhase = math.Cos(2.0 * math.Pi * (doy - 180.0) / 365.0)
	} else {
		seasonPhase = math.Cos(2.0 * math.Pi * (doy - 365.0) / 365.0)
	}

	absLat := math.Abs(latDeg)
	var latFactor float64
	switch {
	case absLat < 15.0:
		latFactor = 0.55 + 0.05*seasonPhase
	case absLat < 35.0:
		latFactor = 0.70 + 0.10*seasonPhase
	case absLat < 55.0:
		latFactor = 0.62 + 0.12*seasonPhase
	case absLat < 65.0:
		latFactor = 0.52 + 0.10*seasonPhase
	default:
		latFactor = 0.45 + 0.10*seasonPhase
	}

	seed := int64(latDeg*100.0)*397 ^ int64(lonDeg*100.0)*631 ^ int64(doy)*1013
	dailyNoise := (float64(seed%1000)/1000.0 - 0.5) * 2.0
	dayVariation := dailyNoise * 0.12

	intraday := 0.0
	if lstH >= 6.0 && lstH <= 20.0 {
		intraday = -0.05 * (lstH - 13.0) / 7.0
	}

	return clampF(latFactor+dayVariation+intraday, 0.15, 1.0)
}

// ambientTemperature estimates 2 m air temperature from latitude, season and
// the diurnal cycle (min before solar dawn, max ~2 h after solar noon).
func ambientTemperature(latDeg, doy, lstH float64) float64 {
	absLat := math.Abs(latDeg)

	var annualMean float64
	switch {
	case absLat < 10.0:
		annualMean = 27.0
	case absLat < 25.0:
		annualMean = 22.0
	case absLat < 40.0:
		annualMean = 15.0
	case absLat < 55.0:
		annualMean = 8.0
	case absLat < 66.5:
		annualMean = 1.0
	default:
		annualMean = -10.0
	}

	var amplitude float64
	switch {
	case absLat < 10.0:
		amplitude = 2.0
	case absLat < 25.0:
		amplitude = 7.0
	case absLat < 40.0:
		amplitude = 12.0
	case absLat < 55.0:
		amplitude = 14.0
	default:
		amplitude = 12.0
	}

	var seasonAngle float64
	if latDeg >= 0 {
		seasonAngle = 2.0 * math.Pi * (doy - 200.0) / 365.0
	} else {
		seasonAngle = 2.0 * math.Pi * (doy - 20.0) / 365.0
	}
	seasonal := annualMean + amplitude*math.Cos(seasonAngle)
	diurnal := 5.0 * math.Cos(2.0*math.Pi*(lstH-14.0)/24.0)
	return seasonal + diurnal
}

// windSpeed estimates 10 m wind speed: convective diurnal peak ~14:00 solar,
// stronger winters at mid/high latitudes, deterministic synoptic factor,
// nighttime calming.
func windSpeed(latDeg, lonDeg, doy, lstH float64) float64 {
	absLat := math.Abs(latDeg)
	var base float64
	switch {
	case absLat < 10.0:
		base = 2.2
	case absLat < 25.0:
		base = 3.0
	case absLat < 40.0:
		base = 3.8
	case absLat < 55.0:
		base = 4.5
	default:
		base = 5.5
	}

	diurnal := base * 0.35 * math.Abs(math.Cos(2.0*math.Pi*(lstH-14.0)/24.0))

	seasonAmp := base * 0.25
	var season float64
	if latDeg >= 0 {
		season = seasonAmp * (-math.Cos(2.0 * math.Pi * (doy - 200.0) / 365.0))
	} else {
		season = seasonAmp * math.Cos(2.0*math.Pi*(doy-20.0)/365.0)
	}

	seed := int64(latDeg*73.0)*701 ^ int64(lonDeg*73.0)*449 ^ int64(doy)*983
	dailyFactor := 0.60 + 0.80*hash01(seed, 0x6c62272e07bb0142)

	nightDamp := 1.0
	if lstH < 5.5 || lstH > 21.5 {
		nightDamp = 0.45
	}

	return clampF((base+diurnal+season)*dailyFactor*nightDamp, 0.3, 18.0)
}

// relativeHumidity peaks at dawn, bottoms out in early afternoon,
// anti-correlated with temperature.
func relativeHumidity(latDeg, doy, lstH float64) float64 {
	absLat := math.Abs(latDeg)
	var base float64
	switch {
	case absLat < 10.0:
		base = 78.0
	case absLat < 25.0:
		base = 58.0
	case absLat < 40.0:
		base = 62.0
	case absLat < 55.0:
		base = 70.0
	default:
		base = 72.0
	}

	diurnal := 14.0 * math.Cos(2.0*math.Pi*(lstH-5.0)/24.0)
	var seasonal float64
	if latDeg >= 0 {
		seasonal = 8.0 * math.Cos(2.0*math.Pi*(doy-200.0)/365.0)
	} else {
		seasonal = 8.0 * math.Cos(2.0*math.Pi*(doy-20.0)/365.0)
	}
	return clampF(base+diurnal+seasonal, 15.0, 98.0)
}

// soilingFactor walks back up to 30 days to the most recent rainy day
// (reconstructed noon cloud factor below the rain threshold). Dust
// accumulates at 0.3 %/day, capped at a 15 % irradiance loss.
func soilingFactor(latDeg, lonDeg, doy float64) float64 {
	const (
		soilRate = 0.003
		maxDays  = 30
		rainCF   = 0.42
	)
	absLat := math.Abs(latDeg)
	dryDays := 0

	for back := 1; back <= maxDays; back++ {
		pastDoy := float64(mod365(int(doy)-back) + 1)

		var seasonPhase float64
		if latDeg >= 0 {
			seasonPhase = math.Cos(2.0 * math.Pi * (pastDoy - 180.0) / 365.0)
		} else {
			seasonPhase = math.Cos(2.0 * math.Pi * (pastDoy - 365.0) / 365.0)
		}
		var base float64
		switch {
		case absLat < 15.0:
			base = 0.55 + 0.05*seasonPhase
		case absLat < 35.0:
			base = 0.70 + 0.10*seasonPhase
		case absLat < 55.0:
			base = 0.62 + 0.12*seasonPhase
		case absLat < 65.0:
			base = 0.52 + 0.10*seasonPhase
		default:
			base = 0.45 + 0.10*seasonPhase
		}
		seed := int64(latDeg*100.0)*397 ^ int64(lonDeg*100.0)*631 ^ int64(pastDoy)*1013
		noise := (float64(seed%1000)/1000.0 - 0.5) * 2.0
		pastCF := clampF(base+noise*0.12, 0.15, 1.0)

		if pastCF < rainCF {
			break
		}
		dryDays++
	}

	return clampF(1.0-soilRate*float64(dryDays), 0.85, 1.0)
}

// weatherCode derives a WMO-like code from the computed atmospheric state, so
// clients can render a weather icon.
func weatherCode(cloudFactor, elevationDeg, doy, latDeg float64) uint16 {
	if elevationDeg <= 0 {
		return 0
	}

	absLat := math.Abs(latDeg)
	var winterDay bool
	if latDeg >= 0 {
		winterDay = doy < 60.0 || doy > 330.0
	} else {
		winterDay = doy > 150.0 && doy < 270.0
	}
	snowLikely := absLat > 40.0 && winterDay

	switch {
	case cloudFactor > 0.85:
		return 0
	case cloudFactor > 0.75:
		return 1
	case cloudFactor > 0.60:
		return 2
	case cloudFactor > 0.45:
		return 3
	case cloudFactor > 0.35:
		if snowLikely {
			return 71
		}
		return 61
	case cloudFactor > 0.25:
		if snowLikely {
			return 73
		}
		return 63
	default:
		if snowLikely {
			return 75
		}
		return 65
	}
}

// hash01 maps a seed into [0, 1) deterministically. The multiply wraps in
// uint64, matching the climatology tables this model was tuned against.
func hash01(seed int64, mult uint64) float64 {
	return float64(uint64(seed)*mult>>11) / float64(uint64(1)<<53)
}

func mod365(v int) int {
	v %= 365
	if v < 0 {
		v += 365
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
