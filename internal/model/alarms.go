package model

import "time"

type AlarmSeverity string

const (
	SeverityInfo     AlarmSeverity = "INFO"
	SeverityWarning  AlarmSeverity = "WARNING"
	SeverityCritical AlarmSeverity = "CRITICAL"
	SeverityFault    AlarmSeverity = "FAULT"
)

// AlarmEvent is one threshold crossing. Cleared alarms stay in the history
// with Active=false rather than being deleted.
type AlarmEvent struct {
	ID        string        `json:"id"`
	PlantID   string        `json:"plant_id"`
	Code      uint16        `json:"code"`
	Severity  AlarmSeverity `json:"severity"`
	Message   string        `json:"message"`
	RaisedAt  time.Time     `json:"raised_at"`
	Active    bool          `json:"active"`
	ClearedAt *time.Time    `json:"cleared_at,omitempty"`
}

// Alarm codes, IEC 62116 / VDE 0126 inspired.
const (
	AlarmNone              uint16 = 0
	AlarmACOvervoltage     uint16 = 101
	AlarmACUndervoltage    uint16 = 102
	AlarmACOverfrequency   uint16 = 103
	AlarmACUnderfrequency  uint16 = 104
	AlarmRocofTrip         uint16 = 105
	AlarmDCOvervoltage     uint16 = 201
	AlarmDCUndervoltage    uint16 = 202
	AlarmMPPTFailure       uint16 = 203
	AlarmIsolationFault    uint16 = 301
	AlarmGroundFault       uint16 = 302
	AlarmOvertemperature   uint16 = 401
	AlarmFanFault          uint16 = 402
	AlarmCommunicationLoss uint16 = 501
	AlarmInternalFault     uint16 = 999
)

// Bit positions for TelemetryRecord.AlarmFlags.
const (
	FlagACOvervoltage     uint32 = 1 << 0
	FlagACUndervoltage    uint32 = 1 << 1
	FlagFrequencyFault    uint32 = 1 << 2
	FlagIsolationFault    uint32 = 1 << 3
	FlagOvertemperature   uint32 = 1 << 4
	FlagMPPTDeviation     uint32 = 1 << 5
	FlagGridDisconnect    uint32 = 1 << 6
	FlagCommunicationLoss uint32 = 1 << 7
)

type EventKind string

const (
	EventPlantStartup EventKind = "PLANT_STARTUP"
	EventModeChange   EventKind = "MODE_CHANGE"
	EventAlarmRaised  EventKind = "ALARM_RAISED"
	EventAlarmCleared EventKind = "ALARM_CLEARED"
	EventAlarmsAcked  EventKind = "ALARMS_ACKNOWLEDGED"
	EventFaultTrip    EventKind = "FAULT_TRIP"
)

// Event is one entry in the system event log.
type Event struct {
	ID        string    `json:"id"`
	PlantID   string    `json:"plant_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
