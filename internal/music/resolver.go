package music

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/youruser/musiccard/internal/fetch"
	"github.com/youruser/musiccard/internal/util"
)

// Resolver follows share-link redirects to the final track URL.
type Resolver struct {
	client *retryablehttp.Client
	policy fetch.Policy
	log    *slog.Logger
}

// NewResolver retries transient failures and non-2xx answers with the
// backoff schedule of p.
func NewResolver(p fetch.Policy, timeout time.Duration, log *slog.Logger) *Resolver {
	c := retryablehttp.NewClient()
	c.RetryMax = p.MaxAttempts - 1
	c.RetryWaitMin = p.InitialDelay
	c.RetryWaitMax = p.MaxDelay
	c.Backoff = policyBackoff(p)
	c.CheckRetry = retryNon2xx
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient.Timeout = timeout
	c.Logger = nil

	return &Resolver{client: c, policy: p, log: log}
}

// policyBackoff maps retryablehttp's zero-based attempt counter onto the
// fetch.Policy schedule so the first wait is InitialDelay*factor.
func policyBackoff(p fetch.Policy) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
		return p.Delay(attemptNum + 1)
	}
}

func retryNon2xx(ctx context.Context, resp *http.Response, err error) (bool, error) {
	retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	if retry || checkErr != nil {
		return retry, checkErr
	}
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return true, nil
	}
	return false, nil
}

// Resolve extracts the first URL from text and returns where it redirects.
func (r *Resolver) Resolve(ctx context.Context, text string) (string, error) {
	u, err := ExtractURL(text)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoURL, err)
	}
	req.Header.Set("User-Agent", util.BrowserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("resolve %s: %w", u, ctxErr)
		}
		return "", &fetch.RetryExhaustedError{Attempts: r.policy.MaxAttempts, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &fetch.RetryExhaustedError{
			Attempts: r.policy.MaxAttempts,
			Err:      fmt.Errorf("http status %d", resp.StatusCode),
		}
	}

	final := resp.Request.URL.String()
	r.log.Debug("short link resolved", "from", u, "to", final)
	return final, nil
}
