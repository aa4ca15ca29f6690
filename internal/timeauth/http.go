package timeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
	"github.com/tellSlater/greeksummerlight/internal/clocksource"
)

// DefaultTimeURL is a worldtimeapi-style endpoint for UTC.
const DefaultTimeURL = "https://worldtimeapi.org/api/timezone/Etc/UTC"

const maxBody = 64 << 10

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP reads the time from a JSON time API. Only the UTC fields are used;
// any offset the server reports for its own zone is ignored.
type HTTP struct {
	url    string
	client HTTPClient
	opts   options
}

var _ clocksource.Authority = (*HTTP)(nil)

// NewHTTP returns an authority that GETs url. A nil client gets a default one
// with a 10 second timeout.
func NewHTTP(url string, client HTTPClient, opts ...Option) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{url: url, client: client, opts: newOptions(opts)}
}

type timeResponse struct {
	UTCDatetime string `json:"utc_datetime"`
	Unixtime    *int64 `json:"unixtime"`
}

// FetchUTC requests the time API and parses its UTC time.
func (h *HTTP) FetchUTC(ctx context.Context) (calendar.Timestamp, error) {
	var body []byte
	err := h.opts.do(ctx, h.url, func() error {
		b, err := h.get(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return calendar.Timestamp{}, err
	}
	return parseTimeResponse(body)
}

func (h *HTTP) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: creating request: %w", clocksource.ErrTransport, errPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "greeksummerlight/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", clocksource.ErrTransport, h.url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			h.opts.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", clocksource.ErrTransport, h.url, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %w: GET %s: HTTP %d", clocksource.ErrTransport, errPermanent, h.url, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", clocksource.ErrTransport, err)
	}
	return b, nil
}

func parseTimeResponse(body []byte) (calendar.Timestamp, error) {
	var tr timeResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return calendar.Timestamp{}, fmt.Errorf("%w: decoding time response: %w", clocksource.ErrParse, err)
	}
	if tr.UTCDatetime != "" {
		t, err := time.Parse(time.RFC3339Nano, tr.UTCDatetime)
		if err != nil {
			return calendar.Timestamp{}, fmt.Errorf("%w: utc_datetime %q: %w", clocksource.ErrParse, tr.UTCDatetime, err)
		}
		return calendar.FromTime(t), nil
	}
	if tr.Unixtime != nil {
		return calendar.FromEpoch(*tr.Unixtime), nil
	}
	return calendar.Timestamp{}, fmt.Errorf("%w: response has neither utc_datetime nor unixtime", clocksource.ErrParse)
}

// Close drops idle keep-alive connections.
func (h *HTTP) Close() error {
	if c, ok := h.client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}
