package feed

import (
	"context"
	"time"

	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

// DexcomSource adapts the provider EGV endpoint to the pipeline's reading
// model.
type DexcomSource struct {
	client *dexcom.Client
}

var _ Source = (*DexcomSource)(nil)

func NewDexcomSource(client *dexcom.Client) *DexcomSource {
	return &DexcomSource{client: client}
}

func (s *DexcomSource) Readings(ctx context.Context, start, end time.Time) ([]glucose.Reading, error) {
	egvs, err := s.client.EGV.List(ctx, start, end)
	if err != nil {
		return nil, err
	}

	readings := make([]glucose.Reading, 0, len(egvs))
	for _, egv := range egvs {
		readings = append(readings, glucose.Reading{
			Timestamp: egv.SystemTime.Time,
			Value:     egv.Value,
		})
	}
	return readings, nil
}
