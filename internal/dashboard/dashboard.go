// Package dashboard manages mounted dashboard sessions. A dashboard owns one
// query controller and one table pagination state; unmounting it detaches any
// fetch still in flight.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/controller"
	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/paginate"
	"github.com/kjstillabower/weather-history-dashboard/internal/views"
)

// ErrNotFound is returned for an unknown or unmounted dashboard id.
var ErrNotFound = errors.New("dashboard not found")

// View is the full render state of a dashboard. Chart and Table are present
// only for a Success outcome.
type View struct {
	ID         string              `json:"id"`
	Status     controller.Status   `json:"status"`
	Message    string              `json:"message,omitempty"`
	Generation uint64              `json:"generation"`
	Query      *views.QuerySummary `json:"query,omitempty"`
	Chart      *views.Chart        `json:"chart,omitempty"`
	Table      *views.Table        `json:"table,omitempty"`
	Pagination paginate.State      `json:"pagination"`
	Options    []int               `json:"rowsPerPageOptions"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Dashboard is one mounted session.
type Dashboard struct {
	id   string
	ctrl *controller.Controller
	now  func() time.Time

	mu       sync.Mutex
	page     paginate.State
	pagedGen uint64 // generation of the Success the page state belongs to
	lastSeen time.Time
}

func newDashboard(id string, fetcher controller.Fetcher, logger *zap.Logger, now func() time.Time) *Dashboard {
	d := &Dashboard{
		id:       id,
		now:      now,
		page:     paginate.NewState(),
		lastSeen: now(),
	}
	d.ctrl = controller.New(fetcher, logger.With(zap.String("dashboard_id", id)),
		controller.WithClock(now),
		controller.WithOnCommit(d.onCommit),
	)
	return d
}

// ID returns the dashboard id.
func (d *Dashboard) ID() string {
	return d.id
}

// onCommit returns the table to page 1 whenever a new response lands.
func (d *Dashboard) onCommit(o controller.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncPageLocked(o)
}

// syncPageLocked resets the page state the first time it sees a Success newer
// than the one it was paged for. Every page read and write goes through it, so
// a commit hook that runs late cannot reset a page chosen for the same response.
func (d *Dashboard) syncPageLocked(o controller.Outcome) {
	if o.Status != controller.Success || o.Generation <= d.pagedGen {
		return
	}
	d.page.Reset()
	d.pagedGen = o.Generation
}

// Submit starts a query. See controller.Controller.Submit.
func (d *Dashboard) Submit(ctx context.Context, q models.Query) (uint64, error) {
	d.touch()
	return d.ctrl.Submit(ctx, q)
}

// GoToPage moves the table to page p, clamped to the current response.
func (d *Dashboard) GoToPage(p int) {
	o := d.ctrl.Outcome()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = d.now()
	d.syncPageLocked(o)
	d.page.GoToPage(p, rowCount(o))
}

// SetRowsPerPage changes the page size (10, 20 or 50) and returns to page 1.
func (d *Dashboard) SetRowsPerPage(n int) error {
	o := d.ctrl.Outcome()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = d.now()
	d.syncPageLocked(o)
	return d.page.SetRowsPerPage(n)
}

// View renders the latest committed outcome with the current pagination.
func (d *Dashboard) View() View {
	o := d.ctrl.Outcome()
	d.mu.Lock()
	d.syncPageLocked(o)
	page := d.page
	d.lastSeen = d.now()
	d.mu.Unlock()

	v := View{
		ID:         d.id,
		Status:     o.Status,
		Message:    o.Message,
		Generation: o.Generation,
		Pagination: page,
		Options:    paginate.RowsPerPageOptions,
		UpdatedAt:  o.UpdatedAt,
	}
	if q, ok := d.ctrl.Query(); ok {
		summary := views.NewQuerySummary(q)
		v.Query = &summary
	}
	if o.Status == controller.Success && o.Data != nil {
		chart := views.NewChart(*o.Data)
		table := views.NewTable(*o.Data, page)
		v.Chart = &chart
		v.Table = &table
	}
	return v
}

func (d *Dashboard) touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = d.now()
}

func (d *Dashboard) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func rowCount(o controller.Outcome) int {
	if o.Status != controller.Success || o.Data == nil {
		return 0
	}
	return o.Data.Len()
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry tracks mounted dashboards. Safe for concurrent use.
type Registry struct {
	fetcher controller.Fetcher
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	dashboards map[string]*Dashboard
	detached   []*controller.Controller
}

// NewRegistry returns an empty registry whose dashboards fetch through fetcher.
func NewRegistry(fetcher controller.Fetcher, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		fetcher:    fetcher,
		logger:     logger,
		now:        time.Now,
		dashboards: make(map[string]*Dashboard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount creates a dashboard with a fresh id.
func (r *Registry) Mount() *Dashboard {
	d := newDashboard(uuid.NewString(), r.fetcher, r.logger, r.now)
	r.mu.Lock()
	r.dashboards[d.id] = d
	n := len(r.dashboards)
	r.mu.Unlock()
	observability.DashboardsMounted.Set(float64(n))
	r.logger.Debug("dashboard mounted", zap.String("dashboard_id", d.id))
	return d
}

// Get returns the dashboard for id.
func (r *Registry) Get(id string) (*Dashboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Unmount removes the dashboard and detaches its controller. In-flight
// fetches finish in the background and their results are dropped.
func (r *Registry) Unmount(id string) error {
	r.mu.Lock()
	d, ok := r.dashboards[id]
	if ok {
		r.unmountLocked(d)
	}
	n := len(r.dashboards)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	observability.DashboardsMounted.Set(float64(n))
	r.logger.Debug("dashboard unmounted", zap.String("dashboard_id", id))
	return nil
}

// SweepIdle unmounts dashboards untouched for at least maxIdle and returns how many.
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	r.pruneDetachedLocked()
	removed := 0
	for _, d := range r.dashboards {
		if !d.idleSince().After(cutoff) {
			r.unmountLocked(d)
			removed++
		}
	}
	n := len(r.dashboards)
	r.mu.Unlock()
	observability.DashboardsMounted.Set(float64(n))
	if removed > 0 {
		r.logger.Info("idle dashboards unmounted", zap.Int("count", removed), zap.Duration("max_idle", maxIdle))
	}
	return removed
}

// Len returns the number of mounted dashboards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dashboards)
}

// Close unmounts every dashboard. Call during shutdown, then Wait.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, d := range r.dashboards {
		r.unmountLocked(d)
	}
	r.mu.Unlock()
	observability.DashboardsMounted.Set(0)
}

// Wait blocks until fetches started by unmounted dashboards have resolved,
// or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	ctrls := r.detached
	r.detached = nil
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, c := range ctrls {
			c.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unmountLocked requires r.mu.
func (r *Registry) unmountLocked(d *Dashboard) {
	d.ctrl.Close()
	delete(r.dashboards, d.id)
	if d.ctrl.InFlight() > 0 {
		r.detached = append(r.detached, d.ctrl)
	}
}

// pruneDetachedLocked forgets detached controllers with nothing in flight. Requires r.mu.
func (r *Registry) pruneDetachedLocked() {
	kept := r.detached[:0]
	for _, c := range r.detached {
		if c.InFlight() > 0 {
			kept = append(kept, c)
		}
	}
	r.detached = kept
}
