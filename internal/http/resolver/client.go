// Package resolver is an HTTP client for the external metadata
// resolver service.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/resolve"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"golang.org/x/time/rate"
)

const resolvePath = "/resolve"

var log = logger.Get("Resolver")

type (
	Config struct {
		BaseURL string `yaml:"base_url" env:"RESOLVER_BASE_URL" validate:"required,url"`
		APIKey  string `yaml:"api_key" env:"RESOLVER_API_KEY"`

		// Calls to the resolver are limited to this many per second, with
		// bursts of up to 'Burst' calls allowed.
		RequestsPerSecond float64 `yaml:"requests_per_second" env:"RESOLVER_REQUESTS_PER_SECOND" env-default:"5" validate:"gt=0"`
		Burst             int     `yaml:"burst" env:"RESOLVER_BURST" env-default:"2" validate:"min=1"`

		TimeoutSeconds int `yaml:"timeout_seconds" env:"RESOLVER_TIMEOUT_SECONDS" env-default:"60" validate:"min=1"`
	}

	Client struct {
		config  Config
		http    *http.Client
		limiter *rate.Limiter
	}

	serviceError struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	// FailedRequestError is returned when the resolver responds
	// with a non-200 status.
	FailedRequestError struct {
		httpCode int
		message  string
	}

	// UnknownRequestError is returned when the request could not be
	// performed, or the response could not be understood.
	UnknownRequestError struct {
		message string
	}
)

func New(config Config) *Client {
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(1, config.Burst)),
	}
}

// Resolve asks the resolver service for the metadata of the identifier
// provided. Failures reported by the service are mapped to the typed
// errors of the resolve package based on the response status.
func (client *Client) Resolve(ctx context.Context, identifier string) (map[string]any, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait")
	}

	endpoint, err := client.endpoint(identifier)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("failed to build resolver request: %s", err.Error())}
	}
	req.Header.Set("Accept", "application/json")
	if client.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+client.config.APIKey)
	}

	log.Emit(logger.VERBOSE, "GET %s\n", endpoint)
	resp, err := client.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "resolver request cancelled")
		}

		// The request URL carries the identifier, which must not leak in to the
		// message where it could be mistaken for a classification marker.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, &UnknownRequestError{fmt.Sprintf("failed to perform GET: %s", err.Error())}
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("failed to read response body: %s", err.Error())}
	}

	var metadata map[string]any
	if err := json.Unmarshal(respBody, &metadata); err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
	}
	if metadata == nil {
		return nil, &UnknownRequestError{"response JSON was not an object"}
	}

	return metadata, nil
}

func (client *Client) endpoint(identifier string) (string, error) {
	base, err := url.Parse(strings.TrimRight(client.config.BaseURL, "/") + resolvePath)
	if err != nil {
		return "", errors.Wrapf(err, "resolver base URL %q is invalid", client.config.BaseURL)
	}

	query := base.Query()
	query.Set("url", identifier)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// classifyStatus builds the error for a non-OK response, marking it with
// the resolve sentinel matching the status code (if any).
func classifyStatus(status int, body []byte) error {
	message := "non-OK response could not be unmarshalled"
	var svcErr serviceError
	if err := json.Unmarshal(body, &svcErr); err == nil {
		if svcErr.Error != "" {
			message = svcErr.Error
		} else if svcErr.Message != "" {
			message = svcErr.Message
		}
	}

	failure := &FailedRequestError{httpCode: status, message: message}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Mark(failure, resolve.ErrUnauthorized)
	case http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return errors.Mark(failure, resolve.ErrUnsupportedContent)
	case http.StatusNotFound, http.StatusGone:
		return errors.Mark(failure, resolve.ErrInvalidLink)
	}

	return failure
}

func (e *FailedRequestError) Error() string {
	return fmt.Sprintf("resolver request failed (HTTP %d): %s", e.httpCode, e.message)
}

func (e *FailedRequestError) StatusCode() int { return e.httpCode }

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("resolver request failed: %s", e.message)
}
