package session

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Session errors.
var (
	// ErrClosed is returned by Do after Close was called.
	ErrClosed = errors.New("session closed")

	// ErrCircuitOpen is returned while the circuit breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Config holds configuration for a Session.
type Config struct {
	// Name identifies the session in logs and breaker state changes.
	Name string

	// Timeout bounds every individual HTTP exchange.
	// Default: 10 seconds
	Timeout time.Duration

	// Retries is the number of extra attempts after a network error or 5xx.
	// Zero means a single attempt.
	Retries uint64

	// InitialInterval is the first backoff interval between retries.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// Breaker configures the circuit breaker.
	// If nil, DefaultBreakerConfig(Name) is used.
	Breaker *BreakerConfig

	// Logger for session operations.
	Logger zerolog.Logger
}

// DefaultConfig returns a single-attempt session configuration.
func DefaultConfig(name string) Config {
	breaker := DefaultBreakerConfig(name)
	return Config{
		Name:            name,
		Timeout:         10 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         &breaker,
	}
}

// Session is an HTTP session shared by API clients. The creator owns it and
// must call Close when done; clients only borrow it.
type Session struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     Config
	logger     zerolog.Logger
	closed     atomic.Bool
}

// New opens a new Session.
func New(cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}
	if breakerCfg.OnStateChange == nil {
		logger := cfg.Logger
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("session", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	return &Session{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: newBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type param, not response
		config:  cfg,
		logger:  cfg.Logger,
	}
}

// Do executes an HTTP request through the circuit breaker.
// Network errors and 5xx responses are retried up to Config.Retries times.
// When retries are exhausted on a 5xx, the last response is returned so the
// caller can inspect its status.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.config.InitialInterval
	bo.MaxInterval = s.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.config.Retries), ctx)

	var lastResp *http.Response

	operation := func() error {
		if s.closed.Load() {
			return backoff.Permanent(ErrClosed)
		}

		resp, err := s.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, err := s.httpClient.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if lastResp != nil && !errors.Is(err, ErrClosed) {
			return lastResp, nil
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		return nil, err
	}

	return lastResp, nil
}

// Close releases idle connections. Requests issued after Close fail with
// ErrClosed. Close is idempotent.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.httpClient.CloseIdleConnections()
	s.logger.Debug().Str("session", s.config.Name).Msg("session closed")
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// BreakerState returns the current state of the circuit breaker.
func (s *Session) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// BreakerCounts returns the circuit breaker counters.
func (s *Session) BreakerCounts() gobreaker.Counts {
	return s.breaker.Counts()
}

// ServerError represents an HTTP 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
