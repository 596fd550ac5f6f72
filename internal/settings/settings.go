package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

var ErrNotFound = errors.New("settings not found")

// Store persists per-user alert settings so they survive client reloads.
// Get falls back to defaults for users who never saved any; the store is
// not the system of record for connection state.
type Store interface {
	Get(ctx context.Context, userID string) (glucose.Settings, error)
	Put(ctx context.Context, userID string, s glucose.Settings) error
}

// Patch is a partial settings update; nil fields are left unchanged.
type Patch struct {
	TargetLow  *int `json:"target_low,omitempty"`
	TargetHigh *int `json:"target_high,omitempty"`
	AlertLow   *int `json:"alert_low,omitempty"`
	AlertHigh  *int `json:"alert_high,omitempty"`
}

const (
	minThreshold = 40
	maxThreshold = 400
)

func (p Patch) Validate() error {
	for _, v := range []*int{p.TargetLow, p.TargetHigh, p.AlertLow, p.AlertHigh} {
		if v != nil && (*v < minThreshold || *v > maxThreshold) {
			return fmt.Errorf("threshold %d out of range [%d, %d] mg/dL", *v, minThreshold, maxThreshold)
		}
	}
	return nil
}

// Apply returns s with the patch's non-nil fields applied.
func (p Patch) Apply(s glucose.Settings) glucose.Settings {
	if p.TargetLow != nil {
		s.TargetLow = *p.TargetLow
	}
	if p.TargetHigh != nil {
		s.TargetHigh = *p.TargetHigh
	}
	if p.AlertLow != nil {
		s.AlertLow = *p.AlertLow
	}
	if p.AlertHigh != nil {
		s.AlertHigh = *p.AlertHigh
	}
	return s
}
