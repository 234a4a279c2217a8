package plc

// AlarmState is the tri-state alarm flag of a system.
type AlarmState int

const (
	// AlarmUnknown means no trustworthy value was read this cycle.
	AlarmUnknown AlarmState = iota
	// AlarmActive means the alarm-summary tag reads true.
	AlarmActive
	// AlarmInactive means the alarm-summary tag reads false.
	AlarmInactive
)

// AlarmFromBool converts a tag value into an alarm state.
func AlarmFromBool(active bool) AlarmState {
	if active {
		return AlarmActive
	}

	return AlarmInactive
}

// Known reports whether the state carries a value read from the device.
func (s AlarmState) Known() bool {
	return s == AlarmActive || s == AlarmInactive
}

// String returns the state name used in logs and event payloads.
func (s AlarmState) String() string {
	switch s {
	case AlarmActive:
		return "active"
	case AlarmInactive:
		return "inactive"
	default:
		return "unknown"
	}
}
