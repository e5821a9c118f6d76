package openmeteo

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/resilience"
)

const (
	forecastPath = "/v1/forecast"
	dateLayout   = "2006-01-02"
	hourLayout   = "2006-01-02T15:04"

	defaultLookback = 7 * 24 * time.Hour
)

// ErrNoData is returned when a response carries no usable values for the
// requested field and window.
var ErrNoData = eris.New("openmeteo: no data")

// Series is an hourly series for one field at one point. Values[i] is nil
// where the API returned null.
type Series struct {
	Field  string
	Times  []time.Time
	Values []*float64
}

// forecastResponse is the subset of the forecast JSON we read. The field
// arrays live under "hourly" keyed by their request name.
type forecastResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
	Error  bool                       `json:"error"`
	Reason string                     `json:"reason"`
}

// Hourly implements Client.
func (c *client) Hourly(ctx context.Context, q Query) (*Series, error) {
	if q.Field == "" {
		return nil, eris.New("openmeteo: field is required")
	}
	return resilience.Retry(ctx, c.retry, func(ctx context.Context) (*Series, error) {
		return resilience.Guard(ctx, c.breaker, func(ctx context.Context) (*Series, error) {
			return c.fetch(ctx, q)
		})
	})
}

// PointValue implements Client.
func (c *client) PointValue(ctx context.Context, q Query) (float64, error) {
	series, err := c.Hourly(ctx, q)
	if err != nil {
		return 0, err
	}

	var v float64
	if q.HasWindow() {
		from, to := orderedWindow(q.From, q.To)
		v, err = series.MeanBetween(from, to)
	} else {
		v, err = series.Mean()
	}
	if err != nil {
		return 0, err
	}
	return roundTenth(v), nil
}

func (c *client) fetch(ctx context.Context, q Query) (*Series, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openmeteo: rate limit")
	}

	from, to := c.dateRange(q)
	params := url.Values{
		"latitude":   {strconv.FormatFloat(q.Latitude, 'f', 6, 64)},
		"longitude":  {strconv.FormatFloat(q.Longitude, 'f', 6, 64)},
		"start_date": {from.UTC().Format(dateLayout)},
		"end_date":   {to.UTC().Format(dateLayout)},
		"hourly":     {q.Field},
	}

	reqURL := c.baseURL + forecastPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(serviceName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: read body")
	}

	series, err := parseForecast(body, q.Field)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("openmeteo: fetched series",
		zap.Float64("lat", q.Latitude),
		zap.Float64("lng", q.Longitude),
		zap.String("field", q.Field),
		zap.Int("hours", len(series.Times)),
	)
	return series, nil
}

// dateRange returns the inclusive calendar range to request.
func (c *client) dateRange(q Query) (time.Time, time.Time) {
	if !q.HasWindow() {
		now := c.now()
		return now.Add(-defaultLookback), now
	}
	return orderedWindow(q.From, q.To)
}

func parseForecast(body []byte, field string) (*Series, error) {
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "openmeteo: parse response")
	}
	if resp.Error {
		return nil, eris.Errorf("openmeteo: api error: %s", resp.Reason)
	}

	rawTimes, ok := resp.Hourly["time"]
	if !ok {
		return nil, eris.Wrap(ErrNoData, "openmeteo: missing hourly.time")
	}
	rawValues, ok := resp.Hourly[field]
	if !ok {
		return nil, eris.Wrapf(ErrNoData, "openmeteo: missing hourly.%s", field)
	}

	var stamps []string
	if err := json.Unmarshal(rawTimes, &stamps); err != nil {
		return nil, eris.Wrap(err, "openmeteo: parse hourly.time")
	}
	var values []*float64
	if err := json.Unmarshal(rawValues, &values); err != nil {
		return nil, eris.Wrapf(err, "openmeteo: parse hourly.%s", field)
	}
	if len(values) == 0 {
		return nil, eris.Wrapf(ErrNoData, "openmeteo: empty hourly.%s", field)
	}

	n := min(len(stamps), len(values))
	series := &Series{
		Field:  field,
		Times:  make([]time.Time, 0, n),
		Values: make([]*float64, 0, n),
	}
	for i := range n {
		ts, err := parseHour(stamps[i])
		if err != nil {
			return nil, eris.Wrapf(err, "openmeteo: parse timestamp %q", stamps[i])
		}
		series.Times = append(series.Times, ts)
		series.Values = append(series.Values, values[i])
	}
	return series, nil
}

func parseHour(s string) (time.Time, error) {
	if t, err := time.Parse(hourLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Mean averages every non-null value in the series.
func (s *Series) Mean() (float64, error) {
	var sum float64
	var n int
	for _, v := range s.Values {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, ErrNoData
	}
	return sum / float64(n), nil
}

// MeanBetween averages the non-null values whose timestamps fall inside
// [from, to]. Nulls are excluded from both the sum and the count.
func (s *Series) MeanBetween(from, to time.Time) (float64, error) {
	var sum float64
	var n int
	for i, v := range s.Values {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if s.Times[i].Before(from) || s.Times[i].After(to) {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, ErrNoData
	}
	return sum / float64(n), nil
}

func orderedWindow(a, b time.Time) (time.Time, time.Time) {
	if a.After(b) {
		return b, a
	}
	return a, b
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
