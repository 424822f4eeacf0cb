package downstream

import (
	"context"
	"time"

	"github.com/ralpioxxcs/vtlr/internal/dispatcher"
)

// PlaybackClient plays clips on devices through the playback gateway.
type PlaybackClient struct {
	client client
}

func NewPlaybackClient(baseURL string, timeout time.Duration) *PlaybackClient {
	return &PlaybackClient{client: newClient(baseURL, "playback", timeout)}
}

func (c *PlaybackClient) WithBreaker(breaker Breaker) *PlaybackClient {
	c.client.breaker = breaker
	return c
}

func (c *PlaybackClient) WithMetrics(sink MetricsSink) *PlaybackClient {
	c.client.metrics = sink
	return c
}

type playRequest struct {
	DeviceID string  `json:"device_id"`
	URL      string  `json:"url"`
	Volume   float64 `json:"volume"`
}

func (c *PlaybackClient) Play(ctx context.Context, deviceID, clipURL string, volume float64) error {
	return c.client.do(ctx, "POST", "/v1.0/playback", playRequest{
		DeviceID: deviceID,
		URL:      clipURL,
		Volume:   volume,
	}, nil)
}

var _ dispatcher.Playback = (*PlaybackClient)(nil)
