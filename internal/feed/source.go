package feed

import (
	"context"
	"time"

	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

// Source yields glucose readings for a time window, oldest first. The
// variant (real provider or simulated) is chosen when the session is
// constructed, never branched on inline.
type Source interface {
	Readings(ctx context.Context, start, end time.Time) ([]glucose.Reading, error)
}
