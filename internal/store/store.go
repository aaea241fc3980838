// Package store owns the shared telemetry table. Each plant has its own slot
// guarded by its own lock, so publishing one plant's record never contends
// with readers of another plant. A publish swaps in a freshly built immutable
// snapshot; readers always see a fully-formed PlantState, never a partially
// written record.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"solarsim/internal/model"
)

// alarmHistoryLimit caps the retained per-plant alarm history (cleared alarms
// included).
const alarmHistoryLimit = 64

type slot struct {
	mu    sync.RWMutex
	state *model.PlantState
}

type Store struct {
	slots map[string]*slot
	order []string
	tick  time.Duration

	eventsMu sync.Mutex
	events   []model.Event
}

// New creates one slot per plant. The plant set is fixed for the process
// lifetime; publishing to an unknown id is an error, not an insert.
func New(plantIDs []string, tick time.Duration) *Store {
	s := &Store{
		slots: make(map[string]*slot, len(plantIDs)),
		order: append([]string(nil), plantIDs...),
		tick:  tick,
	}
	for _, id := range plantIDs {
		s.slots[id] = &slot{state: &model.PlantState{PlantID: id}}
	}
	return s
}

// Publish replaces the plant's current record atomically, re-evaluates the
// alarm thresholds against it, and stamps the update time. Alarm evaluation
// runs under the slot lock so the snapshot and its alarm list always agree;
// only this plant's readers wait, and event log appends happen after unlock.
func (s *Store) Publish(plantID string, rec model.TelemetryRecord, degraded bool) error {
	sl, ok := s.slots[plantID]
	if !ok {
		return fmt.Errorf("store: unknown plant %q", plantID)
	}

	now := time.Now()

	sl.mu.Lock()
	prev := sl.state
	alarms, flags, raised, cleared := evaluateAlarms(plantID, prev.Alarms, &rec, degraded, now)
	rec.AlarmFlags = flags
	sl.state = &model.PlantState{
		PlantID:    plantID,
		Record:     rec,
		Alarms:     alarms,
		LastUpdate: now,
		Degraded:   degraded,
	}
	sl.mu.Unlock()

	for _, a := range raised {
		s.appendEvent(plantID, model.EventAlarmRaised, fmt.Sprintf("alarm %d raised: %s", a.Code, a.Message))
	}
	for _, a := range cleared {
		s.appendEvent(plantID, model.EventAlarmCleared, fmt.Sprintf("alarm %d cleared", a.Code))
	}
	return nil
}

// Get returns a snapshot of the plant's state, with the stale flag derived
// from the update age. The returned alarm slice is a copy.
func (s *Store) Get(plantID string) (model.PlantState, bool) {
	sl, ok := s.slots[plantID]
	if !ok {
		return model.PlantState{}, false
	}

	sl.mu.RLock()
	st := sl.state
	sl.mu.RUnlock()

	out := *st
	out.Alarms = append([]model.AlarmEvent(nil), st.Alarms...)
	out.Stale = !st.LastUpdate.IsZero() && time.Since(st.LastUpdate) > 2*s.tick
	return out, true
}

// ListPlants returns plant ids in configuration order.
func (s *Store) ListPlants() []string {
	return append([]string(nil), s.order...)
}

// All returns a snapshot of every plant, in configuration order.
func (s *Store) All() []model.PlantState {
	out := make([]model.PlantState, 0, len(s.order))
	for _, id := range s.order {
		if st, ok := s.Get(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// ClearAlarms acknowledges every active alarm of the plant and returns how
// many were cleared. History entries are kept, only deactivated.
func (s *Store) ClearAlarms(plantID string) int {
	sl, ok := s.slots[plantID]
	if !ok {
		return 0
	}

	now := time.Now()
	cleared := 0

	sl.mu.Lock()
	prev := sl.state
	alarms := append([]model.AlarmEvent(nil), prev.Alarms...)
	for i := range alarms {
		if alarms[i].Active {
			t := now
			alarms[i].Active = false
			alarms[i].ClearedAt = &t
			cleared++
		}
	}
	next := *prev
	next.Alarms = alarms
	next.Record.AlarmFlags = 0
	sl.state = &next
	sl.mu.Unlock()

	if cleared > 0 {
		s.appendEvent(plantID, model.EventAlarmsAcked, fmt.Sprintf("%d alarms acknowledged", cleared))
	}
	return cleared
}

// Alarms returns the plant's alarm list, optionally only active entries.
// An empty plantID selects all plants.
func (s *Store) Alarms(plantID string, activeOnly bool) []model.AlarmEvent {
	var out []model.AlarmEvent
	for _, id := range s.order {
		if plantID != "" && id != plantID {
			continue
		}
		st, ok := s.Get(id)
		if !ok {
			continue
		}
		for _, a := range st.Alarms {
			if activeOnly && !a.Active {
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

// AddEvent records a system-level event (startup, mode change, ...).
func (s *Store) AddEvent(plantID string, kind model.EventKind, message string) {
	s.appendEvent(plantID, kind, message)
}

// Events returns the most recent events, newest first.
func (s *Store) Events(limit int) []model.Event {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]model.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

const eventLogLimit = 1000

func (s *Store) appendEvent(plantID string, kind model.EventKind, message string) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	s.events = append(s.events, model.Event{
		ID:        uuid.NewString(),
		PlantID:   plantID,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(s.events) > eventLogLimit {
		s.events = s.events[len(s.events)-eventLogLimit:]
	}
}
