package dexcom

import (
	"fmt"
	"time"
)

// TimestampLayout is the second-precision layout the EGV endpoints use for
// query parameters. The provider rejects fractional seconds and zone
// suffixes on the request side.
const TimestampLayout = "2006-01-02T15:04:05"

// Time handles the provider's timestamp formats: response bodies carry
// either RFC 3339 or zone-less second-precision strings.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	for _, layout := range []string{time.RFC3339, TimestampLayout} {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("%w: unrecognized timestamp %q", ErrMalformedResponse, s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimestampLayout) + `"`), nil
}

// EGV is one estimated glucose value record from /v3/users/self/egvs.
type EGV struct {
	SystemTime  Time     `json:"systemTime"`
	DisplayTime Time     `json:"displayTime"`
	Value       int      `json:"value"`
	Trend       string   `json:"trend"`
	TrendRate   *float64 `json:"trendRate"`
	Unit        string   `json:"unit"`
}

type EGVResponse struct {
	RecordType    string `json:"recordType"`
	RecordVersion string `json:"recordVersion"`
	UserID        string `json:"userId"`
	Records       []EGV  `json:"records"`
}

// Device describes a CGM transmitter/receiver from /v3/users/self/devices.
type Device struct {
	TransmitterID         string `json:"transmitterId"`
	TransmitterGeneration string `json:"transmitterGeneration"`
	DisplayDevice         string `json:"displayDevice"`
	LastUploadDate        Time   `json:"lastUploadDate"`
}

type DeviceResponse struct {
	RecordType    string   `json:"recordType"`
	RecordVersion string   `json:"recordVersion"`
	UserID        string   `json:"userId"`
	Records       []Device `json:"records"`
}
