// Package openmeteo queries the Open-Meteo forecast API for hourly point values.
package openmeteo

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/regionstat/internal/resilience"
)

// DefaultBaseURL is the public Open-Meteo endpoint.
const DefaultBaseURL = "https://api.open-meteo.com"

const serviceName = "openmeteo"

// Client fetches hourly series and reduces them to point values.
type Client interface {
	// Hourly returns the raw hourly series for a point and field.
	Hourly(ctx context.Context, q Query) (*Series, error)

	// PointValue returns the mean of the non-null hourly values that fall
	// inside the query window, rounded to one decimal. Null hours are
	// skipped rather than counted as zero, so a window with gaps averages
	// only the hours that reported. ErrNoData is returned when none did.
	PointValue(ctx context.Context, q Query) (float64, error)
}

// Query identifies one point query. A zero From and To selects the last
// seven days.
type Query struct {
	Latitude  float64
	Longitude float64
	Field     string
	From      time.Time
	To        time.Time
}

// HasWindow reports whether the query carries an explicit time window.
func (q Query) HasWindow() bool {
	return !q.From.IsZero() || !q.To.IsZero()
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *client) {
		c.retry = p
	}
}

// WithBreaker sets the circuit breaker guarding the API.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithClock overrides the clock used for the default seven-day window.
func WithClock(now func() time.Time) Option {
	return func(c *client) {
		c.now = now
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryPolicy
	breaker    *resilience.Breaker
	now        func() time.Time
}

// NewClient creates an Open-Meteo Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultRetryPolicy(),
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerConfig(serviceName)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetry(serviceName, "forecast")
	}
	return c
}
