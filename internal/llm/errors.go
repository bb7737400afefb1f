// ABOUTME: Classifies upstream model errors as transient or permanent
// ABOUTME: Rate limits, server errors and timeouts are retried; bad requests are not
package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// DefaultRateLimitBackoff is the pause after a 429 that carries no Retry-After
const DefaultRateLimitBackoff = 5 * time.Second

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return retryableStatus(anthErr.StatusCode)
	}
	// Google API errors expose their HTTP status this way
	var httpCoder interface{ HTTPCode() int }
	if errors.As(err, &httpCoder) && httpCoder.HTTPCode() > 0 {
		return retryableStatus(httpCoder.HTTPCode())
	}

	// Network errors, empty responses and other unclassified failures are retried
	return true
}

func retryableStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// RetryAfter reports whether err is a rate-limit (429) response and how long
// the upstream asked callers to wait. go-openai does not expose response
// headers, so its 429s get DefaultRateLimitBackoff.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		if anthErr.StatusCode != http.StatusTooManyRequests {
			return 0, false
		}
		var header http.Header
		if anthErr.Response != nil {
			header = anthErr.Response.Header
		}
		return retryAfterHeader(header), true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code != http.StatusTooManyRequests {
			return 0, false
		}
		return retryAfterHeader(gErr.Header), true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return rateLimited(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return rateLimited(reqErr.HTTPStatusCode)
	}
	var httpCoder interface{ HTTPCode() int }
	if errors.As(err, &httpCoder) {
		return rateLimited(httpCoder.HTTPCode())
	}
	return 0, false
}

func rateLimited(code int) (time.Duration, bool) {
	if code != http.StatusTooManyRequests {
		return 0, false
	}
	return DefaultRateLimitBackoff, true
}

// retryAfterHeader parses Retry-After as delay-seconds or an HTTP date
func retryAfterHeader(header http.Header) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return DefaultRateLimitBackoff
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRateLimitBackoff
}
