// Package studyplanner is the HTTP client of the study planner sync endpoints.
package studyplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"lifedash/internal/domain/integration"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 2 // requests per second
	defaultBurst     = 4
	maxErrorBody     = 4 << 10
)

// Config holds the endpoint settings.
type Config struct {
	PullURL   string
	PushURL   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// Client handles communication with the study planner API
type Client struct {
	httpClient *http.Client
	pullURL    string
	pushURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a client. Zero settings select the defaults.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		pullURL: cfg.PullURL,
		pushURL: cfg.PushURL,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
	}
}

// Pull fetches the remote collections for creds. Malformed items are
// reported in PullData.Rejected and do not fail the call.
func (c *Client) Pull(ctx context.Context, creds Credentials) (*PullData, error) {
	var resp rawPullResponse
	if err := c.post(ctx, "pull", c.pullURL, creds, &resp); err != nil {
		return nil, err
	}

	data := &PullData{}
	data.Subjects = decodeItems[RemoteSubject](data, "subjects", resp.Data.Subjects)
	data.Syllabi = decodeItems[RemoteSyllabus](data, "syllabi", resp.Data.Syllabi)
	data.Events = decodeItems[RemoteEvent](data, "events", resp.Data.Events)
	data.Tasks = decodeItems[RemoteTask](data, "tasks", resp.Data.Tasks)
	data.ExamEvents = decodeItems[RemoteExam](data, "examEvents", resp.Data.ExamEvents)
	return data, nil
}

func decodeItems[T any](data *PullData, collection string, raw []json.RawMessage) []T {
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			var id RemoteID
			_ = json.Unmarshal(r, &id)
			data.Rejected = append(data.Rejected, RejectedItem{Collection: collection, ExternalID: id.Key(), Err: err})
			continue
		}
		items = append(items, item)
	}
	return items
}

// Push sends the gathered local domains for creds.
func (c *Client) Push(ctx context.Context, creds Credentials, payload PushPayload) (*PushResponse, error) {
	var resp PushResponse
	if err := c.post(ctx, "push", c.pushURL, PushRequest{Credentials: creds, Payload: payload}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, op, url string, body, out any) error {
	if url == "" {
		return &integration.TransportError{Op: op, Err: errors.New("endpoint url is not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return &integration.TransportError{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &integration.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &integration.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &integration.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts {error} from a failure body, falling back to the
// raw text.
func errorMessage(raw []byte) string {
	var errResp ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		return ""
	}
	return text
}
