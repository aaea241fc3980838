// Package weather provides the live environment feed. A provider is bound to
// one site; the simulation worker owns one per plant and decides what to do
// when a fetch fails — this package never substitutes data on error.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"solarsim/internal/model"
	"solarsim/internal/solar"
)

// Provider yields one environmental observation per call.
type Provider interface {
	Current(ctx context.Context) (model.EnvironmentSample, error)
}

type OpenMeteoClient struct {
	latitude  float64
	longitude float64
	client    *http.Client
}

func NewOpenMeteoClient(latitude, longitude float64) *OpenMeteoClient {
	return &OpenMeteoClient{
		latitude:  latitude,
		longitude: longitude,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type openMeteoResponse struct {
	Current struct {
		Time               string   `json:"time"`
		ShortwaveRadiation *float64 `json:"shortwave_radiation"`
		Temperature2M      *float64 `json:"temperature_2m"`
		WeatherCode        *int     `json:"weather_code"`
		CloudCover         *float64 `json:"cloud_cover"`
		IsDay              *int     `json:"is_day"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Current(ctx context.Context) (model.EnvironmentSample, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", c.latitude))
	query.Set("longitude", fmt.Sprintf("%.6f", c.longitude))
	query.Set("current", "shortwave_radiation,temperature_2m,weather_code,cloud_cover,is_day")

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.open-meteo.com",
		Path:     "/v1/forecast",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return model.EnvironmentSample{}, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.EnvironmentSample{}, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.EnvironmentSample{}, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.EnvironmentSample{}, fmt.Errorf("open-meteo decode: %w", err)
	}
	if strings.TrimSpace(payload.Current.Time) == "" {
		return model.EnvironmentSample{}, fmt.Errorf("open-meteo current data missing")
	}

	now := time.Now().UTC()
	sample := model.EnvironmentSample{
		IrradianceWM2:     floatOr(payload.Current.ShortwaveRadiation, 0),
		AmbientTempC:      floatOr(payload.Current.Temperature2M, 20.0),
		WeatherCode:       uint16(intOr(payload.Current.WeatherCode, 0)),
		IsDay:             intOr(payload.Current.IsDay, 1) == 1,
		SolarElevationDeg: solar.ElevationDeg(c.latitude, c.longitude, now),
		Timestamp:         parseObservationTime(payload.Current.Time, now),
	}
	// Open-Meteo reports cloud cover in percent; express it as the fraction
	// of clear-sky irradiance getting through, the scale the model uses.
	cover := floatOr(payload.Current.CloudCover, 0)
	sample.CloudFactor = 1.0 - 0.75*(cover/100.0)

	if sample.IrradianceWM2 < 0 {
		sample.IrradianceWM2 = 0
	}
	return sample, nil
}

// parseObservationTime handles Open-Meteo's minute-resolution timestamp
// ("2025-12-28T10:40"); any parse failure falls back to the request time.
func parseObservationTime(value string, fallback time.Time) time.Time {
	if t, err := time.Parse("2006-01-02T15:04", value); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	return fallback
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
