package httpclient

import (
	"net/http"
	"time"

	"taskpilot/internal/logging"
)

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

// New builds an HTTP client with the given timeout whose request durations
// and failures are logged at debug level.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(started)
	if err != nil {
		t.logger.Debug("%s %s failed after %v: %v", req.Method, req.URL.Host, elapsed, err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d (%v)", req.Method, req.URL.Host, resp.StatusCode, elapsed)
	return resp, nil
}
