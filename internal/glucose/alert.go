package glucose

type AlertKind string

const (
	AlertNone AlertKind = ""
	AlertLow  AlertKind = "low"
	AlertHigh AlertKind = "high"
)

// Evaluate is a pure function of a reading against the user's thresholds.
// Values on the thresholds themselves do not alert.
func Evaluate(r Reading, s Settings) AlertKind {
	switch {
	case r.Value < s.AlertLow:
		return AlertLow
	case r.Value > s.AlertHigh:
		return AlertHigh
	default:
		return AlertNone
	}
}
