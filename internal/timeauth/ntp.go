package timeauth

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
	"github.com/tellSlater/greeksummerlight/internal/clocksource"
)

const defaultNTPTimeout = 5 * time.Second

// NTP asks an NTP server for the time.
type NTP struct {
	server string
	opts   options
	query  func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

var _ clocksource.Authority = (*NTP)(nil)

// NewNTP returns an authority backed by server, e.g. "0.pool.ntp.org".
func NewNTP(server string, opts ...Option) *NTP {
	return &NTP{
		server: server,
		opts:   newOptions(opts),
		query:  ntp.QueryWithOptions,
	}
}

// FetchUTC queries the server and returns its transmit time advanced by half
// the round trip.
func (n *NTP) FetchUTC(ctx context.Context) (calendar.Timestamp, error) {
	var resp *ntp.Response
	err := n.opts.do(ctx, "ntp:"+n.server, func() error {
		r, err := n.query(n.server, ntp.QueryOptions{Timeout: queryTimeout(ctx, defaultNTPTimeout)})
		if err != nil {
			return fmt.Errorf("%w: ntp query %s: %w", clocksource.ErrTransport, n.server, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return calendar.Timestamp{}, err
	}
	if err := resp.Validate(); err != nil {
		return calendar.Timestamp{}, fmt.Errorf("%w: ntp response from %s: %w", clocksource.ErrParse, n.server, err)
	}
	return responseTime(resp), nil
}

// Close is a no-op; every query uses its own socket.
func (n *NTP) Close() error { return nil }

func responseTime(resp *ntp.Response) calendar.Timestamp {
	return calendar.FromTime(resp.Time.Add(resp.RTT / 2))
}

// queryTimeout caps fallback by the time left on ctx.
func queryTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	left := time.Until(dl)
	if left <= 0 {
		return time.Millisecond
	}
	if left < fallback {
		return left
	}
	return fallback
}
