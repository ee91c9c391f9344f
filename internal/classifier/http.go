package classifier

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPModel delegates inference to a remote endpoint:
// POST {base}/v1/models/{id}/infer with {"features":[...]} returning {"logits":[...]}.
// NaN features are sent as null.
type HTTPModel struct {
	id     string
	client *resty.Client
}

// HTTPOptions configure the remote backend.
type HTTPOptions struct {
	BaseURL    string
	ModelID    string
	Timeout    time.Duration
	RetryCount int
}

type inferRequest struct {
	Features []*float64 `json:"features"`
}

type inferResponse struct {
	Logits []float64 `json:"logits"`
	Error  string    `json:"error,omitempty"`
}

// NewHTTPModel builds a resty-backed model client.
func NewHTTPModel(opts HTTPOptions) *HTTPModel {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPModel{id: opts.ModelID, client: client}
}

// Infer posts the feature vector and returns the remote logits.
func (m *HTTPModel) Infer(ctx context.Context, input []float64) ([]float64, error) {
	body := inferRequest{Features: make([]*float64, len(input))}
	for i := range input {
		if !math.IsNaN(input[i]) && !math.IsInf(input[i], 0) {
			v := input[i]
			body.Features[i] = &v
		}
	}

	var out inferResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/v1/models/" + url.PathEscape(m.id) + "/infer")
	if err != nil {
		return nil, fmt.Errorf("call inference endpoint: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode(), out.Error)
		}
		return nil, fmt.Errorf("inference endpoint returned %d", resp.StatusCode())
	}
	return out.Logits, nil
}

var _ Model = (*HTTPModel)(nil)
