// Package gemini implements generation.Service over the Google Generative
// Language REST API: Gemini for text and edits, Imagen for images, Veo for
// video.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/dreamhouse/internal/composer"
	"github.com/kalambet/dreamhouse/internal/generation"
)

const (
	DefaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout  = 120 * time.Second
	downloadTimeout = 10 * time.Minute
	maxRetries      = 3
	initialBackoff  = 500 * time.Millisecond
)

// Default model names.
const (
	DefaultTextModel  = "gemini-2.5-pro"
	DefaultImageModel = "imagen-4.0-generate-001"
	DefaultVideoModel = "veo-3.0-fast-generate-001"
	DefaultEditModel  = "gemini-2.5-flash-image"
)

// KeySource yields the API key to send with a request.
type KeySource interface {
	Key(ctx context.Context) (string, error)
}

// StaticKey is a fixed API key.
type StaticKey string

func (k StaticKey) Key(context.Context) (string, error) {
	if k == "" {
		return "", errors.New("empty API key")
	}
	return string(k), nil
}

// Models selects the model used for each kind of call.
type Models struct {
	Text  string
	Image string
	Video string
	Edit  string
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	BaseURL    string
	APIKey     KeySource
	VideoKey   KeySource // falls back to APIKey
	Models     Models
	Composer   *composer.Composer
	HTTPClient *http.Client
}

// Client talks to the Generative Language API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     KeySource
	videoKey   KeySource
	models     Models
	composer   *composer.Composer
	httpClient *http.Client
	logger     *slog.Logger
}

var _ generation.Service = (*Client)(nil)

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		videoKey:   opts.VideoKey,
		models:     opts.Models,
		composer:   opts.Composer,
		httpClient: opts.HTTPClient,
		logger:     slog.Default(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.videoKey == nil {
		c.videoKey = c.apiKey
	}
	if c.models.Text == "" {
		c.models.Text = DefaultTextModel
	}
	if c.models.Image == "" {
		c.models.Image = DefaultImageModel
	}
	if c.models.Video == "" {
		c.models.Video = DefaultVideoModel
	}
	if c.models.Edit == "" {
		c.models.Edit = DefaultEditModel
	}
	if c.composer == nil {
		c.composer = composer.New(nil)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClient(Options{BaseURL: baseURL, APIKey: StaticKey(apiKey)})
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	status  int
	message string
	reason  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.message)
}

// Is maps authentication failures onto generation.ErrCredentialRejected.
func (e *statusError) Is(target error) bool {
	if target != generation.ErrCredentialRejected {
		return false
	}
	switch {
	case e.status == http.StatusUnauthorized, e.status == http.StatusForbidden:
		return true
	case e.reason == "API_KEY_INVALID", e.reason == "PERMISSION_DENIED":
		return true
	}
	return strings.Contains(e.message, "API key not valid")
}

func newStatusError(status int, body []byte) *statusError {
	se := &statusError{status: status, message: strings.TrimSpace(string(body))}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		se.message = env.Error.Message
		for _, d := range env.Error.Details {
			if d.Reason != "" {
				se.reason = d.Reason
				break
			}
		}
		if se.reason == "" && env.Error.Status == "PERMISSION_DENIED" {
			se.reason = env.Error.Status
		}
	}
	return se
}

func (c *Client) resolveKey(ctx context.Context, src KeySource) (string, error) {
	if src == nil {
		return "", fmt.Errorf("%w: no API key configured", generation.ErrCredentialRejected)
	}
	key, err := src.Key(ctx)
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: no usable API key: %v", generation.ErrCredentialRejected, err)
	}
	return key, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// call sends a JSON request and decodes the JSON answer into out, retrying
// with exponential backoff on HTTP 429.
func (c *Client) call(ctx context.Context, method, path string, keys KeySource, in, out any) error {
	key, err := c.resolveKey(ctx, keys)
	if err != nil {
		return err
	}

	var body []byte
	if in != nil {
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.callOnce(ctx, method, c.url(path), key, body, out)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) callOnce(ctx context.Context, method, url, key string, body []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	setHeaders(req, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newStatusError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// download GETs url and returns the body. The caller closes it.
func (c *Client) download(ctx context.Context, url string, keys KeySource) (io.ReadCloser, error) {
	key, err := c.resolveKey(ctx, keys)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url(url), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		cancel()
		return nil, newStatusError(resp.StatusCode, respBody)
	}

	// Wrap the body so the timeout context cancel is called when the caller closes it.
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func setHeaders(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)
}
