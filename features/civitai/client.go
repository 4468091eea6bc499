// Package civitai is a client of the CivitAI model registry REST API and
// resolves extracted resource references into registry records.
package civitai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/util"
)

const (
	DefaultBaseURL     = "https://civitai.com/api/v1/"
	DefaultRetries     = 2
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
	maxErrorBody       = 4096
)

// ErrRegistryUnavailable is matched by every registry failure: network
// errors, timeouts and non-2xx responses.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// error returned by the registry
type ApiError struct {
	Message   string
	Body      string
	Status    int   // http status code
	Err       error // wrapped error
	Retryable bool
}

func (a *ApiError) Error() string {
	if a.Err != nil {
		return fmt.Sprintf("status=%d: %s: %v", a.Status, a.Message, a.Err)
	}
	return fmt.Sprintf("status=%d: %s", a.Status, a.Message)
}

func (a *ApiError) Temporary() bool {
	return a.Retryable || a.Status == http.StatusTooManyRequests ||
		a.Status == http.StatusInternalServerError ||
		a.Status == http.StatusBadGateway ||
		a.Status == http.StatusServiceUnavailable ||
		a.Status == http.StatusGatewayTimeout ||
		(a.Err != nil && util.IsTemporaryError(a.Err))
}

func (a *ApiError) NotFound() bool {
	return a.Status == http.StatusNotFound
}

func (a *ApiError) Unwrap() []error {
	if a.Err == nil {
		return []error{ErrRegistryUnavailable}
	}
	return []error{ErrRegistryUnavailable, a.Err}
}

// Registry is the set of lookups the resolver needs.
type Registry interface {
	ModelVersionByHash(ctx context.Context, hash string) (*ModelVersion, error)
	ModelVersion(ctx context.Context, id int64) (*ModelVersion, error)
	Model(ctx context.Context, id int64) (*Model, error)
}

type Client struct {
	BaseURL     string
	APIKey      string // sent as Bearer token if set
	HTTPClient  *http.Client
	Retries     int // retries of temporary failures, 404 is final
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewClient(baseURL string, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		HTTPClient:  &http.Client{},
		Retries:     DefaultRetries,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// SiteURL returns the web site root of the registry, e.g. "https://civitai.com".
func (c *Client) SiteURL() string {
	return SiteURL(c.BaseURL)
}

// SiteURL returns scheme://host of baseURL.
func SiteURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(baseURL, "/")
	}
	return u.Scheme + "://" + u.Host
}

func (c *Client) ModelVersionByHash(ctx context.Context, hash string) (*ModelVersion, error) {
	path := "model-versions/by-hash/" + url.PathEscape(hash)
	var version *ModelVersion
	if err := c.get(ctx, path, &version); err != nil {
		return nil, err
	}
	if version == nil || version.ID == 0 {
		return nil, errEmptyRecord(path)
	}
	return version, nil
}

func (c *Client) ModelVersion(ctx context.Context, id int64) (*ModelVersion, error) {
	path := "model-versions/" + strconv.FormatInt(id, 10)
	var version *ModelVersion
	if err := c.get(ctx, path, &version); err != nil {
		return nil, err
	}
	if version == nil || version.ID == 0 {
		return nil, errEmptyRecord(path)
	}
	return version, nil
}

func (c *Client) Model(ctx context.Context, id int64) (*Model, error) {
	path := "models/" + strconv.FormatInt(id, 10)
	var model *Model
	if err := c.get(ctx, path, &model); err != nil {
		return nil, err
	}
	if model == nil || model.ID == 0 {
		return nil, errEmptyRecord(path)
	}
	return model, nil
}

// errEmptyRecord reports a 2xx response whose body is null or carries no id.
func errEmptyRecord(path string) error {
	return &ApiError{Status: http.StatusOK, Message: "empty record for " + path}
}

// get does the request, retrying temporary failures with exponential backoff.
func (c *Client) get(ctx context.Context, path string, target any) error {
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := util.CalculateBackoff(c.BaseBackoff, c.MaxBackoff, attempt-1)
			log.Debugf("registry %s failed (attempt %d/%d): %v, retry in %v", path, attempt, c.Retries+1, err, wait)
			select {
			case <-ctx.Done():
				return &ApiError{Message: "canceled", Err: ctx.Err()}
			case <-time.After(wait):
			}
		}
		if err = c.do(ctx, path, target); err == nil {
			return nil
		}
		var apiErr *ApiError
		if ctx.Err() != nil || !errors.As(err, &apiErr) || !apiErr.Temporary() {
			return err
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, target any) error {
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ApiError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &ApiError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ApiError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &ApiError{Status: resp.StatusCode, Message: "failed to decode response", Err: err, Retryable: true}
	}
	return nil
}
