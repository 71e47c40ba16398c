package vision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pickpoint/config"
)

// HTTPSource asks an external capture service for a fresh centroid set.
// The service owns the camera and detection pipeline; one POST triggers a
// capture and returns the detected points in image coordinates.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSource(cfg config.VisionConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) CaptureAndFindCentroids() ([]Centroid, error) {
	resp, err := s.client.Post(s.endpoint, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("capture request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture service returned %s", resp.Status)
	}
	var body struct {
		Points []Centroid `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode capture response: %w", err)
	}
	return body.Points, nil
}
