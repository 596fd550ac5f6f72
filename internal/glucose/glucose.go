package glucose

import "time"

// Reading is a single estimated glucose value in mg/dL. Immutable once
// produced by a feed source.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     int       `json:"value"`
}

type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connected    ConnectionState = "connected"
)

// Settings are the user's target range and alert thresholds. The connection
// state carried here is a projection of the token store, which remains the
// system of record.
type Settings struct {
	TargetLow  int             `json:"target_low"`
	TargetHigh int             `json:"target_high"`
	AlertLow   int             `json:"alert_low"`
	AlertHigh  int             `json:"alert_high"`
	Connection ConnectionState `json:"connection_state"`
}

func DefaultSettings() Settings {
	return Settings{
		TargetLow:  80,
		TargetHigh: 180,
		AlertLow:   70,
		AlertHigh:  200,
		Connection: Disconnected,
	}
}
