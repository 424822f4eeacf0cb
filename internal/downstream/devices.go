package downstream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/dispatcher"
)

// DeviceClient resolves the playback devices registered to an owner.
type DeviceClient struct {
	client client
}

func NewDeviceClient(baseURL string, timeout time.Duration) *DeviceClient {
	return &DeviceClient{client: newClient(baseURL, "devices", timeout)}
}

func (c *DeviceClient) WithBreaker(breaker Breaker) *DeviceClient {
	c.client.breaker = breaker
	return c
}

func (c *DeviceClient) WithMetrics(sink MetricsSink) *DeviceClient {
	c.client.metrics = sink
	return c
}

type deviceEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *DeviceClient) DevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]dispatcher.Device, error) {
	var entries []deviceEntry
	path := fmt.Sprintf("/v1.0/users/%s/devices", ownerID)
	if err := c.client.do(ctx, "GET", path, nil, &entries); err != nil {
		return nil, err
	}

	devices := make([]dispatcher.Device, len(entries))
	for i, entry := range entries {
		devices[i] = dispatcher.Device{ID: entry.ID, Name: entry.Name}
	}
	return devices, nil
}

var _ dispatcher.DeviceDirectory = (*DeviceClient)(nil)
