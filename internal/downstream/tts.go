package downstream

import (
	"context"
	"time"

	"github.com/ralpioxxcs/vtlr/internal/dispatcher"
)

// TTSClient renders text to an audio clip through the speech service.
type TTSClient struct {
	client client
}

func NewTTSClient(baseURL string, timeout time.Duration) *TTSClient {
	return &TTSClient{client: newClient(baseURL, "tts", timeout)}
}

func (c *TTSClient) WithBreaker(breaker Breaker) *TTSClient {
	c.client.breaker = breaker
	return c
}

func (c *TTSClient) WithMetrics(sink MetricsSink) *TTSClient {
	c.client.metrics = sink
	return c
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type ttsResponse struct {
	URL        string `json:"url"`
	DurationMS int64  `json:"duration_ms"`
}

// Render asks the speech service for a playable clip URL. The clip is
// presigned and short-lived; devices fetch it directly.
func (c *TTSClient) Render(ctx context.Context, req dispatcher.RenderRequest) (dispatcher.RenderResult, error) {
	var resp ttsResponse
	err := c.client.do(ctx, "POST", "/v1.0/tts", ttsRequest{
		Text:     req.Text,
		Language: req.Language,
	}, &resp)
	if err != nil {
		return dispatcher.RenderResult{}, err
	}
	return dispatcher.RenderResult{
		ClipURL:  resp.URL,
		Duration: time.Duration(resp.DurationMS) * time.Millisecond,
	}, nil
}

var _ dispatcher.Renderer = (*TTSClient)(nil)
