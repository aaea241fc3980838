package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"solarsim/internal/model"
)

// Protection thresholds. Voltage band is +-10% of 230 V nominal, frequency
// band 50 Hz +-0.5 Hz, isolation per IEC 62109 (>1 MOhm).
const (
	overVoltageV      = 253.0
	underVoltageV     = 207.0
	overFrequencyHz   = 50.5
	underFrequencyHz  = 49.5
	cellOverTempC     = 85.0
	inverterOverTempC = 80.0
	isolationMinMohm  = 1.0
)

type condition struct {
	code     uint16
	flag     uint32
	severity model.AlarmSeverity
	message  string
	active   bool
}

// evaluateAlarms diffs the new record against the thresholds and the previous
// alarm list. Raising is idempotent: an already-active alarm of the same code
// keeps its original RaisedAt. Resolved conditions are deactivated in place,
// never deleted.
func evaluateAlarms(plantID string, prev []model.AlarmEvent, rec *model.TelemetryRecord, degraded bool, now time.Time) (alarms []model.AlarmEvent, flags uint32, raised, cleared []model.AlarmEvent) {
	conds := thresholdConditions(rec, degraded)

	alarms = append([]model.AlarmEvent(nil), prev...)

	for _, c := range conds {
		if c.active {
			flags |= c.flag
		}

		idx := activeIndex(alarms, c.code)
		switch {
		case c.active && idx < 0:
			a := model.AlarmEvent{
				ID:       uuid.NewString(),
				PlantID:  plantID,
				Code:     c.code,
				Severity: c.severity,
				Message:  c.message,
				RaisedAt: now,
				Active:   true,
			}
			alarms = append(alarms, a)
			raised = append(raised, a)
		case !c.active && idx >= 0:
			t := now
			alarms[idx].Active = false
			alarms[idx].ClearedAt = &t
			cleared = append(cleared, alarms[idx])
		}
	}

	if len(alarms) > alarmHistoryLimit {
		alarms = trimHistory(alarms)
	}
	return alarms, flags, raised, cleared
}

func thresholdConditions(rec *model.TelemetryRecord, degraded bool) []condition {
	maxV := max3(rec.VoltageL1V, rec.VoltageL2V, rec.VoltageL3V)
	minV := min3(rec.VoltageL1V, rec.VoltageL2V, rec.VoltageL3V)
	energized := rec.Status != model.StatusStop && rec.Status != model.StatusFault

	return []condition{
		{
			code: model.AlarmACOvervoltage, flag: model.FlagACOvervoltage,
			severity: model.SeverityWarning,
			message:  fmt.Sprintf("AC voltage %.1f V above %.0f V limit", maxV, overVoltageV),
			active:   energized && maxV > overVoltageV,
		},
		{
			code: model.AlarmACUndervoltage, flag: model.FlagACUndervoltage,
			severity: model.SeverityWarning,
			message:  fmt.Sprintf("AC voltage %.1f V below %.0f V limit", minV, underVoltageV),
			active:   energized && minV < underVoltageV,
		},
		{
			code: model.AlarmACOverfrequency, flag: model.FlagFrequencyFault,
			severity: model.SeverityWarning,
			message:  fmt.Sprintf("grid frequency %.2f Hz above %.1f Hz", rec.FrequencyHz, overFrequencyHz),
			active:   energized && rec.FrequencyHz > overFrequencyHz,
		},
		{
			code: model.AlarmACUnderfrequency, flag: model.FlagFrequencyFault,
			severity: model.SeverityWarning,
			message:  fmt.Sprintf("grid frequency %.2f Hz below %.1f Hz", rec.FrequencyHz, underFrequencyHz),
			active:   energized && rec.FrequencyHz < underFrequencyHz,
		},
		{
			code: model.AlarmOvertemperature, flag: model.FlagOvertemperature,
			severity: model.SeverityCritical,
			message:  fmt.Sprintf("cell %.1f degC / inverter %.1f degC over temperature", rec.CellTempC, rec.InverterTempC),
			active:   rec.CellTempC > cellOverTempC || rec.InverterTempC > inverterOverTempC,
		},
		{
			code: model.AlarmIsolationFault, flag: model.FlagIsolationFault,
			severity: model.SeverityFault,
			message:  fmt.Sprintf("isolation resistance %.2f MOhm below %.1f MOhm", rec.IsolationResistanceMohm, isolationMinMohm),
			active:   rec.IsolationResistanceMohm < isolationMinMohm,
		},
		{
			code: model.AlarmCommunicationLoss, flag: model.FlagCommunicationLoss,
			severity: model.SeverityWarning,
			message:  "environment feed unavailable, running on offline model",
			active:   degraded,
		},
		{
			code: model.AlarmInternalFault, flag: model.FlagGridDisconnect,
			severity: model.SeverityFault,
			message:  fmt.Sprintf("inverter fault code %d", rec.FaultCode),
			active:   rec.Status == model.StatusFault && rec.FaultCode != 0,
		},
	}
}

func activeIndex(alarms []model.AlarmEvent, code uint16) int {
	for i := range alarms {
		if alarms[i].Code == code && alarms[i].Active {
			return i
		}
	}
	return -1
}

// trimHistory drops the oldest cleared entries first; active alarms are never
// evicted.
func trimHistory(alarms []model.AlarmEvent) []model.AlarmEvent {
	out := alarms[:0]
	excess := len(alarms) - alarmHistoryLimit
	for _, a := range alarms {
		if excess > 0 && !a.Active {
			excess--
			continue
		}
		out = append(out, a)
	}
	return out
}

func max3(a, b, c float64) float64 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

func min3(a, b, c float64) float64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
