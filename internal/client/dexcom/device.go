package dexcom

import (
	"context"
	"net/http"
)

type DeviceService interface {
	List(ctx context.Context) ([]Device, error)
}

type deviceService struct {
	client *Client
}

func (s *deviceService) List(ctx context.Context) ([]Device, error) {
	const route = "/v3/users/self/devices"

	var resp DeviceResponse
	if err := s.client.do(ctx, http.MethodGet, route, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}
