// Package controller holds the query outcome state machine of one dashboard.
//
// Each Submit starts a new generation. A fetch resolution is committed only
// when its generation is still the latest and the controller has not been
// closed; otherwise it is discarded. Fetches are never cancelled, only
// detached.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/client"
	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// FailureMessage is shown for every fetch failure regardless of its cause.
const FailureMessage = "Failed to fetch weather data"

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("controller closed")

// Status is the phase of the latest submission.
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the committed result of the latest submission. Data is set only
// for Success and Message only for Failure.
type Outcome struct {
	Status     Status                  `json:"status"`
	Data       *models.WeatherResponse `json:"-"`
	Message    string                  `json:"message,omitempty"`
	Generation uint64                  `json:"generation"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

// Fetcher retrieves history for a validated query.
type Fetcher interface {
	FetchWeather(ctx context.Context, q models.Query) (models.WeatherResponse, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithOnCommit registers fn to run after each committed transition. fn runs
// outside the controller lock and may call back into the controller.
func WithOnCommit(fn func(Outcome)) Option {
	return func(c *Controller) {
		c.onCommit = fn
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller owns one Outcome. Safe for concurrent use.
type Controller struct {
	fetcher  Fetcher
	logger   *zap.Logger
	onCommit func(Outcome)
	now      func() time.Time

	mu       sync.Mutex
	gen      uint64
	outcome  Outcome
	query    models.Query
	hasQuery bool
	closed   bool

	inflight sync.WaitGroup
	pending  atomic.Int64
}

// New returns an Idle controller.
func New(fetcher Fetcher, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outcome = Outcome{Status: Idle, UpdatedAt: c.now()}
	return c
}

// Submit validates q and, if valid, supersedes any prior outcome with Loading
// and starts the fetch in the background. It returns the new generation.
// An invalid q returns a *validation.ValidationError and leaves state untouched.
// The fetch keeps ctx values but not its cancellation.
func (c *Controller) Submit(ctx context.Context, q models.Query) (uint64, error) {
	if err := validation.ValidateQuery(q, c.now()); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.gen++
	gen := c.gen
	c.query = q
	c.hasQuery = true
	loading := Outcome{Status: Loading, Generation: gen, UpdatedAt: c.now()}
	c.outcome = loading
	c.inflight.Add(1)
	c.pending.Add(1)
	c.mu.Unlock()

	observability.OutcomeCommitsTotal.WithLabelValues(Loading.String()).Inc()
	c.notify(loading)

	go c.resolve(context.WithoutCancel(ctx), gen, q)
	return gen, nil
}

func (c *Controller) resolve(ctx context.Context, gen uint64, q models.Query) {
	defer c.inflight.Done()
	defer c.pending.Add(-1)
	logger := observability.LoggerFromContext(ctx, c.logger)

	data, err := c.fetcher.FetchWeather(ctx, q)

	next := Outcome{Generation: gen}
	if err != nil {
		next.Status = Failure
		next.Message = FailureMessage
		logger.Warn("query failed",
			zap.Uint64("generation", gen),
			zap.String("query", q.String()),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	} else {
		next.Status = Success
		next.Data = &data
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		observability.OutcomeDiscardsTotal.WithLabelValues("detached").Inc()
		logger.Debug("discarding result after close", zap.Uint64("generation", gen))
		return
	case gen != c.gen:
		latest := c.gen
		c.mu.Unlock()
		observability.OutcomeDiscardsTotal.WithLabelValues("superseded").Inc()
		logger.Debug("discarding superseded result", zap.Uint64("generation", gen), zap.Uint64("latest", latest))
		return
	}
	next.UpdatedAt = c.now()
	c.outcome = next
	c.mu.Unlock()

	observability.OutcomeCommitsTotal.WithLabelValues(next.Status.String()).Inc()
	c.notify(next)
}

func (c *Controller) notify(o Outcome) {
	if c.onCommit != nil {
		c.onCommit(o)
	}
}

// Outcome returns the latest committed outcome.
func (c *Controller) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Query returns the latest submitted query, or false before the first Submit.
func (c *Controller) Query() (models.Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query, c.hasQuery
}

// Close detaches the controller. In-flight fetches run to completion but their
// results are discarded. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// InFlight returns the number of fetches that have not resolved yet.
func (c *Controller) InFlight() int {
	return int(c.pending.Load())
}

// Wait blocks until every started fetch has resolved.
func (c *Controller) Wait() {
	c.inflight.Wait()
}
