package simulator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solarsim/config"
	"solarsim/internal/model"
	"solarsim/internal/solar"
	"solarsim/internal/store"
	"solarsim/internal/weather"
)

// Publisher receives every published telemetry record (MQTT fan-out).
type Publisher interface {
	PublishTelemetry(plantID string, rec model.TelemetryRecord) error
}

// CounterStore checkpoints energy counters so they survive a restart.
type CounterStore interface {
	LoadCounters(plantID string) (model.EnergyState, error)
	SaveCounters(plantID string, e model.EnergyState) error
}

// Worker drives one plant: every tick it obtains an environment sample, runs
// the power model and publishes the result. Workers are fully independent —
// one plant's slow feed never delays another plant's updates.
type Worker struct {
	plant    config.PlantConfig
	loc      *time.Location
	source   weather.Provider
	store    *store.Store
	pub      Publisher
	counters CounterStore
	interval time.Duration
	timeout  time.Duration
	offline  *atomic.Bool

	energy model.EnergyState
}

// Run ticks until the context is cancelled. The first tick fires immediately
// so the store is populated before the protocol listeners see traffic.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("worker %s: starting (interval %s)", w.plant.ID, w.interval)

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker %s: stopped", w.plant.ID)
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick always publishes something: a live sample when the feed answers in
// time, the offline estimate otherwise. A failed fetch is abandoned at the
// timeout, never awaited past it.
func (w *Worker) tick(ctx context.Context) {
	now := time.Now().UTC()

	var sample model.EnvironmentSample
	degraded := false

	if w.offline.Load() {
		sample = w.offlineSample(now)
	} else {
		fetchCtx, cancel := context.WithTimeout(ctx, w.timeout)
		live, err := w.source.Current(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %s: environment feed failed, using offline model: %v", w.plant.ID, err)
			sample = w.offlineSample(now)
			degraded = true
		} else {
			sample = live
		}
	}

	rec := ComputeTelemetry(w.plant, w.loc, sample, w.energy, now)
	w.energy = model.EnergyState{
		DailyKWh:   rec.DailyEnergyKWh,
		MonthlyKWh: rec.MonthlyEnergyKWh,
		TotalKWh:   rec.TotalEnergyKWh,
		LastUpdate: now,
	}

	if err := w.store.Publish(w.plant.ID, rec, degraded); err != nil {
		log.Printf("worker %s: publish: %v", w.plant.ID, err)
		return
	}

	if w.counters != nil {
		if err := w.counters.SaveCounters(w.plant.ID, w.energy); err != nil {
			log.Printf("worker %s: counter checkpoint: %v", w.plant.ID, err)
		}
	}
	if w.pub != nil {
		if err := w.pub.PublishTelemetry(w.plant.ID, rec); err != nil {
			log.Printf("worker %s: mqtt publish: %v", w.plant.ID, err)
		}
	}
}

func (w *Worker) offlineSample(now time.Time) model.EnvironmentSample {
	est := solar.Compute(w.plant.Latitude, w.plant.Longitude, w.plant.NominalPowerKW, now)
	return model.EnvironmentSample{
		IrradianceWM2:     est.GHIWM2,
		AmbientTempC:      est.AmbientTempC,
		WeatherCode:       est.WeatherCode,
		IsDay:             est.IsDay,
		CloudFactor:       est.CloudFactor,
		SolarElevationDeg: est.SolarElevationDeg,
		Timestamp:         now,
	}
}

// Fleet owns one worker per configured plant plus the offline-mode switch
// they all share.
type Fleet struct {
	workers []*Worker
	store   *store.Store
	offline atomic.Bool
	wg      sync.WaitGroup
}

type FleetConfig struct {
	Plants    []config.PlantConfig
	Store     *store.Store
	Publisher Publisher
	Counters  CounterStore
	Interval  time.Duration
	Timeout   time.Duration
	Offline   bool

	// NewProvider builds the live feed for one plant. Defaults to Open-Meteo;
	// tests substitute their own.
	NewProvider func(p config.PlantConfig) weather.Provider
}

func NewFleet(cfg FleetConfig) (*Fleet, error) {
	newProvider := cfg.NewProvider
	if newProvider == nil {
		newProvider = func(p config.PlantConfig) weather.Provider {
			return weather.NewOpenMeteoClient(p.Latitude, p.Longitude)
		}
	}

	f := &Fleet{store: cfg.Store}
	f.offline.Store(cfg.Offline)

	for _, p := range cfg.Plants {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, err
		}

		w := &Worker{
			plant:    p,
			loc:      loc,
			source:   newProvider(p),
			store:    cfg.Store,
			pub:      cfg.Publisher,
			counters: cfg.Counters,
			interval: cfg.Interval,
			timeout:  cfg.Timeout,
			offline:  &f.offline,
		}
		if cfg.Counters != nil {
			if e, err := cfg.Counters.LoadCounters(p.ID); err == nil {
				// Resume lifetime/monthly totals; stamp is kept so the daily
				// reset logic sees the true gap.
				w.energy = e
			} else {
				log.Printf("worker %s: no persisted counters: %v", p.ID, err)
			}
		}
		f.workers = append(f.workers, w)
	}
	return f, nil
}

// Start launches every worker. Returns immediately; Wait blocks until all
// workers have observed the cancellation.
func (f *Fleet) Start(ctx context.Context) {
	for _, w := range f.workers {
		w := w
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			w.Run(ctx)
		}()
	}
	f.store.AddEvent("", model.EventPlantStartup, "simulation workers started")
}

func (f *Fleet) Wait() {
	f.wg.Wait()
}

// SetOffline flips every worker to (or from) the deterministic solar-geometry
// model. Takes effect on each worker's next tick.
func (f *Fleet) SetOffline(enabled bool) {
	if f.offline.Swap(enabled) != enabled {
		mode := "online (live environment feed)"
		if enabled {
			mode = "offline (solar geometry model)"
		}
		log.Printf("simulation mode: %s", mode)
		f.store.AddEvent("", model.EventModeChange, "simulation mode set to "+mode)
	}
}

func (f *Fleet) Offline() bool {
	return f.offline.Load()
}
