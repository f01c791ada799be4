package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ligustah/milvue/pkg/bundle"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
	ErrEmptyStatus  = errors.New("http: status response has no status field")
)

// APIKeyHeader carries the caller's API key on every request.
const APIKeyHeader = "x-goog-meta-owner"

// Options configures the API client.
type Options struct {
	// BaseURL is the service root, e.g. https://api.example.com.
	BaseURL string

	// APIKey is sent in APIKeyHeader. It is never logged.
	APIKey string

	// PathPrefix is prepended to every endpoint path.
	// Default: /v3
	PathPrefix string

	// Timeout for individual requests, including reading the body.
	// Default: 0 (none; rely on the caller's context)
	Timeout time.Duration

	// Logger receives request traces at debug level.
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		PathPrefix: "/v3",
	}
}

// StatusResponse is the body of a status request.
type StatusResponse struct {
	StudyInstanceUID string `json:"StudyInstanceUID"`
	Status           string `json:"status"`
	Version          string `json:"version"`
	Message          string `json:"message"`
}

// Result is a raw download response. Body must be closed by the caller.
type Result struct {
	ContentType string
	Body        io.ReadCloser
}

// Client talks to the inference service.
type Client struct {
	rc     *resty.Client
	prefix string
	logger *zap.Logger
}

// NewClient creates a new API client with the given options.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimSuffix(opts.PathPrefix, "/")

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetHeader(APIKeyHeader, opts.APIKey).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar()).
		SetTimeout(opts.Timeout)

	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("request",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("took", resp.Time()),
		)
		return nil
	})

	return &Client{
		rc:     rc,
		prefix: prefix,
		logger: logger,
	}
}

// UploadStudy sends every source as one multipart/related body to the
// studies endpoint. Sources are streamed from disk as the request is written.
func (c *Client) UploadStudy(ctx context.Context, studyKey string, sources []bundle.Source) error {
	body, contentType, err := bundle.Encode(ctx, sources)
	if err != nil {
		return fmt.Errorf("encode study %s: %w", studyKey, err)
	}
	defer body.Close()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("type", bundle.DICOMContentType).
		SetBody(body).
		Post(c.prefix + "/studies")
	if err != nil {
		return fmt.Errorf("upload study %s: %w", studyKey, err)
	}
	return checkResponse("upload", resp)
}

// Status fetches the processing state of a study once.
func (c *Client) Status(ctx context.Context, studyKey string) (*StatusResponse, error) {
	var status StatusResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("studyKey", studyKey).
		SetResult(&status).
		ForceContentType("application/json").
		Get(c.prefix + "/studies/{studyKey}/status")
	if err != nil {
		return nil, fmt.Errorf("status of %s: %w", studyKey, err)
	}
	if err := checkResponse("status", resp); err != nil {
		return nil, err
	}
	if status.Status == "" {
		return nil, fmt.Errorf("status of %s: %w", studyKey, ErrEmptyStatus)
	}
	return &status, nil
}

// Download requests the results of a study for one set of query parameters.
// The response body is returned unread.
func (c *Client) Download(ctx context.Context, studyKey string, query url.Values) (*Result, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("studyKey", studyKey).
		SetQueryParamsFromValues(query).
		SetDoNotParseResponse(true).
		Get(c.prefix + "/studies/{studyKey}")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", studyKey, err)
	}

	raw := resp.RawBody()
	if !resp.IsSuccess() {
		data, _ := io.ReadAll(io.LimitReader(raw, maxErrorBody))
		raw.Close()
		return nil, newStatusError("download", resp.StatusCode(), resp.Status(), data)
	}

	return &Result{
		ContentType: resp.Header().Get("Content-Type"),
		Body:        raw,
	}, nil
}

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("http: %s: %s", e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps well-known status codes onto the package's sentinel errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrServerError
	default:
		return nil
	}
}

func newStatusError(op string, code int, status string, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if status == "" {
		status = fmt.Sprintf("%d %s", code, http.StatusText(code))
	}
	return &StatusError{
		Op:         op,
		StatusCode: code,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// checkResponse returns a StatusError for non-success responses.
func checkResponse(op string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return newStatusError(op, resp.StatusCode(), resp.Status(), resp.Body())
}
