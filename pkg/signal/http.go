package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/odvcencio/northstar/pkg/errors"
)

// HTTPSource fetches metrics from a JSON metrics endpoint. The endpoint is
// expected to answer GET {baseURL}/metrics/{metric}?start=...&end=...&segment=...
// with a Sample body.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the given metrics service.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchMetric implements Source.
func (s *HTTPSource) FetchMetric(ctx context.Context, metric string, tr TimeRange, segment string) (*Sample, error) {
	endpoint := fmt.Sprintf("%s/metrics/%s", s.baseURL, url.PathEscape(metric))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSignalFetch, "build metric request").
			WithContext("metric", metric)
	}

	q := req.URL.Query()
	if !tr.Start.IsZero() {
		q.Set("start", tr.Start.UTC().Format(time.RFC3339))
	}
	if !tr.End.IsZero() {
		q.Set("end", tr.End.UTC().Format(time.RFC3339))
	}
	if segment != "" {
		q.Set("segment", segment)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSignalFetch, "fetch metric").
			WithContext("metric", metric).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeSignalFetch, "metric endpoint returned non-200").
			WithContext("metric", metric).
			WithContext("status", resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var sample Sample
	if err := json.NewDecoder(resp.Body).Decode(&sample); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSignalFetch, "decode metric response").
			WithContext("metric", metric)
	}
	return &sample, nil
}
