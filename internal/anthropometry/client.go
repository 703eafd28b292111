package anthropometry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/embedding"
)

// Client calls the measurement service
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewClient creates a measurement client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

// measureResponse is the wire payload. A null ratio means "not measured".
type measureResponse struct {
	Ratios        map[string]*float64 `json:"ratios"`
	LandmarkCount *int                `json:"landmark_count"`
	Confidence    float64             `json:"confidence"`
}

// Measure extracts the anthropometric profile of an image. A profile with zero
// landmarks is returned as is; callers check Available.
func (c *Client) Measure(ctx context.Context, imageData []byte) (*Profile, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := embedding.PostMultipartImage(ctx, c.client, c.baseURL+"/measure", imageData)
	if err != nil {
		return nil, err
	}
	return ParseProfile(body)
}

// ParseProfile validates a measurement payload. Non-finite or negative ratios
// are treated as unavailable.
func ParseProfile(body []byte) (*Profile, error) {
	var resp measureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse measurement response: %w", err)
	}
	if resp.LandmarkCount == nil {
		return nil, errors.New("measurement response missing landmark_count")
	}
	if *resp.LandmarkCount < 0 {
		return nil, fmt.Errorf("invalid landmark_count %d", *resp.LandmarkCount)
	}

	profile := &Profile{
		Ratios:        make(map[string]float64, len(resp.Ratios)),
		LandmarkCount: *resp.LandmarkCount,
		Confidence:    max(0, min(1, resp.Confidence)),
	}
	for name, v := range resp.Ratios {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			continue
		}
		profile.Ratios[name] = *v
	}
	return profile, nil
}
