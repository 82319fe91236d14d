package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mt-gateway/src/helpers"
	"mt-gateway/src/logger"
	"mt-gateway/src/models"

	"golang.org/x/time/rate"
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d %s", e.StatusCode, e.Body)
}

// retryable reports whether another attempt could plausibly succeed
func retryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config  models.MNetworkConfig
	Client  *http.Client
	Limiter *rate.Limiter
	Logger  *logger.Logger
	Retries int
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg models.MNetworkConfig, log *logger.Logger) *AsyncNetworkManager {
	if log == nil {
		log = logger.NewNop()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}

	nm := &AsyncNetworkManager{
		Config:  cfg,
		Limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		Logger:  log,
		Retries: cfg.MaxRetries,
	}
	nm.Client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() *http.Client {
	timeout := time.Duration(nm.Config.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: 4},
		Timeout:   timeout,
	}
}

// -----------------------------------------------------------------------------

// WithRateLimit replaces the limiter, e.g. for endpoints with a strict message budget.
func (nm *AsyncNetworkManager) WithRateLimit(perSecond float64, burst int) *AsyncNetworkManager {
	nm.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return nm
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	return nm.do(ctx, "GET "+reqURL.Path, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	})
}

// -----------------------------------------------------------------------------

// PostJSON posts a JSON body with retries.
func (nm *AsyncNetworkManager) PostJSON(ctx context.Context, urlStr string, body []byte) ([]byte, error) {
	return nm.do(ctx, "POST "+urlStr, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// -----------------------------------------------------------------------------

// PostForm posts url-encoded values with retries.
func (nm *AsyncNetworkManager) PostForm(ctx context.Context, urlStr string, values map[string]string) ([]byte, error) {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	encoded := form.Encode()

	return nm.do(ctx, "POST form", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, operation string, build func() (*http.Request, error)) ([]byte, error) {
	var body []byte

	policy := helpers.RetryPolicy{Attempts: nm.Retries + 1, Delay: time.Second, Exponential: true}
	err := helpers.RetryWithBackoff(ctx, nm.Logger, operation, policy, func() error {
		if err := nm.Limiter.Wait(ctx); err != nil {
			return helpers.Permanent(err)
		}

		req, err := build()
		if err != nil {
			return helpers.Permanent(err)
		}
		if nm.Config.UserAgent != "" {
			req.Header.Set("User-Agent", nm.Config.UserAgent)
		}

		resp, err := nm.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
			if !retryable(statusErr) {
				return helpers.Permanent(statusErr)
			}
			return statusErr
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
