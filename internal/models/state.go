package models

import (
	"strconv"
	"strings"
)

// SystemState is a point-in-time snapshot of one device's world, built
// from its latest telemetry. Conditions are evaluated against it.
type SystemState struct {
	Sensors map[string]float64 `json:"sensors"`
	Relays  [MaxRelays]bool    `json:"relays"`
	Params  map[string]float64 `json:"params"`
}

// StateFromTelemetry builds an evaluation snapshot from a contact report.
// Relay states are normalized to the fixed bank width; missing entries
// stay off.
func StateFromTelemetry(t Telemetry) SystemState {
	state := SystemState{
		Sensors: make(map[string]float64, len(t.Sensors)),
		Params:  make(map[string]float64),
	}
	for name, value := range t.Sensors {
		state.Sensors[name] = value
	}
	for i, on := range t.RelayStates {
		if i >= MaxRelays {
			break
		}
		state.Relays[i] = on
	}
	if t.WifiRSSI != nil {
		state.Params["wifi_rssi"] = float64(*t.WifiRSSI)
		state.Params["wifi_connected"] = 1
	}
	if t.FreeHeap != nil {
		state.Params["free_heap"] = float64(*t.FreeHeap)
	}
	if t.UptimeSeconds != nil {
		state.Params["uptime"] = float64(*t.UptimeSeconds)
	}
	return state
}

// SensorValue returns the named sensor reading. Sensor names double as
// system parameter names so that rules can mix both.
func (s SystemState) SensorValue(name string) (float64, bool) {
	if v, ok := s.Sensors[name]; ok {
		return v, true
	}
	v, ok := s.Params[name]
	return v, ok
}

// RelayValue returns 1/0 for the relay named by index ("3") or by
// "relay_3". Unknown or out-of-range names report absent.
func (s SystemState) RelayValue(name string) (float64, bool) {
	idx, err := strconv.Atoi(strings.TrimPrefix(name, "relay_"))
	if err != nil || idx < 0 || idx >= MaxRelays {
		return 0, false
	}
	if s.Relays[idx] {
		return 1, true
	}
	return 0, true
}

// ParamValue returns the named system parameter.
func (s SystemState) ParamValue(name string) (float64, bool) {
	v, ok := s.Params[name]
	if !ok {
		// Boolean-ish sensors (water_level_ok) may arrive in the
		// sensor map instead.
		v, ok = s.Sensors[name]
	}
	return v, ok
}
