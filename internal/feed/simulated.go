package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

const (
	simulatedMin = 60
	simulatedMax = 250
)

// SimulatedSource produces one random reading per poll at the end of the
// requested window. It needs no provider connection, which makes it the
// demo variant and the test double.
type SimulatedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Source = (*SimulatedSource)(nil)

func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedSource) Readings(_ context.Context, _, end time.Time) ([]glucose.Reading, error) {
	s.mu.Lock()
	value := simulatedMin + s.rng.Intn(simulatedMax-simulatedMin+1)
	s.mu.Unlock()

	return []glucose.Reading{{Timestamp: end, Value: value}}, nil
}
