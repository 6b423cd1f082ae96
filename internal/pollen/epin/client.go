// Package epin is a client for the ePIN pollen measurement network API
// operated by the Bavarian health and food safety authority (LGL).
package epin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// ProviderName identifies this pollen provider.
	ProviderName = "epin"

	// DefaultBaseURL is the ePIN API base URL.
	DefaultBaseURL = "https://epin.lgl.bayern.de/api"

	// MeasurementWindow is how far back GetPollenData looks.
	MeasurementWindow = 3 * time.Hour
)

// ErrNullPayload is returned when the API answers with a JSON null.
var ErrNullPayload = errors.New("null payload")

// Session is the HTTP capability the client borrows from its caller.
// *http.Client and *session.Session both satisfy it.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
}

// MetricsRecorder receives the outcome of every API call.
type MetricsRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// ClientConfig holds configuration for the ePIN client.
type ClientConfig struct {
	// Session issues the HTTP requests (required). The client never closes it.
	Session Session

	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Logger for client operations.
	Logger zerolog.Logger

	// Metrics records per-call outcomes (optional).
	Metrics MetricsRecorder

	// Now returns the current time (optional, defaults to time.Now).
	Now func() time.Time
}

// Client is an ePIN API client. Every method returns a collection, never an
// error: failures are logged and reported as empty results.
type Client struct {
	session Session
	baseURL string
	logger  zerolog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// NewClient creates a new ePIN client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		session: cfg.Session,
		baseURL: baseURL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetLocations returns all measurement sites.
func (c *Client) GetLocations(ctx context.Context) []Location {
	start := time.Now()
	locations, err := c.fetchLocations(ctx)
	c.observe("locations", start, err)
	if err != nil {
		return []Location{}
	}
	return locations
}

// GetPollen returns the identifiers of all tracked pollen types.
func (c *Client) GetPollen(ctx context.Context) []string {
	start := time.Now()
	types, err := c.fetchPollen(ctx)
	c.observe("pollen", start, err)
	if err != nil {
		return []string{}
	}
	return types
}

// GetSeasons returns the pollen seasons.
func (c *Client) GetSeasons(ctx context.Context) []Season {
	start := time.Now()
	seasons, err := c.fetchSeasons(ctx)
	c.observe("seasons", start, err)
	if err != nil {
		return []Season{}
	}
	return seasons
}

// GetPollenData returns the measurements of the last three hours for the
// given locations and pollen types. On failure the report is empty.
func (c *Client) GetPollenData(ctx context.Context, locations, pollenTypes []string) *PollenReport {
	start := time.Now()
	report, err := c.fetchPollenData(ctx, locations, pollenTypes)
	c.observe("measurements", start, err)
	if err != nil {
		return emptyReport()
	}
	return report
}

func (c *Client) fetchLocations(ctx context.Context) ([]Location, error) {
	body, err := c.get(ctx, "locations", c.baseURL+"/locations")
	if err != nil {
		return nil, err
	}
	return DecodeLocations(body)
}

func (c *Client) fetchPollen(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "pollen", c.baseURL+"/pollen")
	if err != nil {
		return nil, err
	}
	return DecodePollenTypes(body)
}

func (c *Client) fetchSeasons(ctx context.Context) ([]Season, error) {
	body, err := c.get(ctx, "seasons", c.baseURL+"/seasons")
	if err != nil {
		return nil, err
	}
	return DecodeSeasons(body)
}

func (c *Client) fetchPollenData(ctx context.Context, locations, pollenTypes []string) (*PollenReport, error) {
	body, err := c.get(ctx, "measurements", c.MeasurementsURL(c.now(), locations, pollenTypes))
	if err != nil {
		return nil, err
	}
	return DecodePollenReport(body)
}

// MeasurementsURL builds the measurements query for the window ending at now.
func (c *Client) MeasurementsURL(now time.Time, locations, pollenTypes []string) string {
	to := now.Unix()
	from := to - int64(MeasurementWindow/time.Second)

	query := url.Values{}
	query.Set("locations", strings.Join(locations, ","))
	query.Set("pollen", strings.Join(pollenTypes, ","))
	query.Set("from", strconv.FormatInt(from, 10))
	query.Set("to", strconv.FormatInt(to, 10))

	return c.baseURL + "/measurements?" + query.Encode()
}

// get issues a GET request and returns the response body of a 2xx answer.
func (c *Client) get(ctx context.Context, operation, endpoint string) ([]byte, error) {
	start := time.Now()

	if c.session == nil {
		return nil, errors.New("no session configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug().
		Str("operation", operation).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("epin request completed")

	return body, nil
}

// observe records the call outcome and logs failures once at error level.
func (c *Client) observe(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordRequest(ProviderName, operation, time.Since(start), err)
	}
	if err != nil {
		c.logger.Error().Err(err).
			Str("provider", ProviderName).
			Str("operation", operation).
			Msgf("error retrieving %s", operation)
	}
}
