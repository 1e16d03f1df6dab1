package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	LastEvent     string       `json:"last_event"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Outputs       []OutputJSON `json:"outputs"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Interrupts    uint64 `json:"interrupts"`
	Enqueued      uint64 `json:"enqueued"`
	Dropped       uint64 `json:"dropped"`
	Received      uint64 `json:"received"`
	Toggles       uint64 `json:"toggles"`
	Unresolved    uint64 `json:"unresolved"`
	ReceiveErrors uint64 `json:"receive_errors"`
}

// OutputJSON is the JSON representation of one output line.
type OutputJSON struct {
	Pin     int    `json:"pin"`
	Level   string `json:"level"`
	Toggles uint64 `json:"toggles"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	Inputs      string `json:"inputs"`
	Outputs     string `json:"outputs"`
	Routes      string `json:"routes"`
	Capacity    int    `json:"capacity"`
	Timestamps  bool   `json:"timestamps"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	outputs := make([]OutputJSON, len(snap.Outputs))
	for i, o := range snap.Outputs {
		outputs[i] = OutputJSON{Pin: int(o.Pin), Level: o.Level.String(), Toggles: o.Toggles}
	}

	return StatusInner{
		LastEvent:     snap.LastEvent,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Interrupts:    snap.Counts.Interrupts,
			Enqueued:      snap.Counts.Enqueued,
			Dropped:       snap.Counts.Dropped,
			Received:      snap.Counts.Received,
			Toggles:       snap.Counts.Toggles,
			Unresolved:    snap.Counts.Unresolved,
			ReceiveErrors: snap.Counts.ReceiveErrors,
		},
		Outputs: outputs,
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			Inputs:      snap.Config.Inputs,
			Outputs:     snap.Config.Outputs,
			Routes:      snap.Config.Routes,
			Capacity:    snap.Config.Capacity,
			Timestamps:  snap.Config.Timestamps,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
