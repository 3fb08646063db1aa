package suppliers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
)

const maxErrorBodyBytes = 4 << 10

// transport is the shared HTTP plumbing for supplier clients. It owns
// timeouts, auth headers, metrics, and the retryable-vs-fatal classification
// of supplier responses.
type transport struct {
	provider enums.Provider
	baseURL  string
	token    string
	http     *http.Client
	metrics  *metrics.SupplierMetrics
	logg     *logger.Logger
}

func newTransport(provider enums.Provider, baseURL, token string, timeout time.Duration, m *metrics.SupplierMetrics, logg *logger.Logger) *transport {
	return &transport{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
		metrics:  m,
		logg:     logg,
	}
}

// doJSON performs one supplier call and decodes the response into out. A
// timeout is never treated as success; the caller decides whether to retry
// based on the returned error's code.
func (t *transport) doJSON(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()
	err := t.roundTrip(ctx, method, path, body, out)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeBusinessRejection {
			outcome = "rejected"
		}
	}
	t.metrics.ObserveCall(string(t.provider), operation, outcome, time.Since(start))
	return err
}

func (t *transport) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode supplier request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build supplier request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("%s request failed", t.provider))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
				fmt.Sprintf("decode %s response", t.provider))
		}
		return nil
	}
	return t.classify(resp)
}

// classify maps a non-2xx supplier response onto the error taxonomy. 4xx
// responses (other than timeout/throttle) are business rejections recorded
// verbatim for support review; everything else is a retryable dependency
// failure.
func (t *transport) classify(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	snippet := strings.TrimSpace(string(raw))

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("%s returned status %d", t.provider, resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	case resp.StatusCode >= 400:
		return pkgerrors.New(pkgerrors.CodeBusinessRejection,
			fmt.Sprintf("%s rejected the request with status %d", t.provider, resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "response": snippet})
	default:
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("%s returned unexpected status %d", t.provider, resp.StatusCode))
	}
}
