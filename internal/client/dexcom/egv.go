package dexcom

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"
)

type EGVService interface {
	// List returns the estimated glucose values within [start, end],
	// ordered oldest first. An empty window is not an error.
	List(ctx context.Context, start, end time.Time) ([]EGV, error)
}

type egvService struct {
	client *Client
}

func (s *egvService) List(ctx context.Context, start, end time.Time) ([]EGV, error) {
	const route = "/v3/users/self/egvs"

	query := make(url.Values)
	query.Set("startDate", start.UTC().Format(TimestampLayout))
	query.Set("endDate", end.UTC().Format(TimestampLayout))

	var resp EGVResponse
	if err := s.client.do(ctx, http.MethodGet, route, query, &resp); err != nil {
		return nil, err
	}

	records := resp.Records

	// The provider returns newest-first; callers depend on time order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SystemTime.Before(records[j].SystemTime.Time)
	})

	return records, nil
}
