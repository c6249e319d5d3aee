package podcasts

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bryan-buckman/podgrab/internal/model"
)

// Refresher serializes update runs. A caller arriving while a run is in
// progress waits for that run and receives its report.
type Refresher struct {
	svc   *Service
	group singleflight.Group
}

func NewRefresher(svc *Service) *Refresher {
	return &Refresher{svc: svc}
}

// Refresh runs Service.Update. The run uses the context of the caller that
// started it. shared reports whether the result came from a run started by
// another caller.
func (r *Refresher) Refresh(ctx context.Context) (report *Report, shared bool, err error) {
	v, err, shared := r.group.Do("update", func() (any, error) {
		return r.svc.Update(ctx)
	})
	report, _ = v.(*Report)
	return report, shared, err
}

// Poller runs update at a fixed interval.
type Poller struct {
	refresher *Refresher
	interval  time.Duration
	timeout   time.Duration
}

// NewPoller creates a background poller. Intervals below
// model.MinPollingInterval are raised to it.
func NewPoller(r *Refresher, interval time.Duration) *Poller {
	if interval < model.MinPollingInterval {
		interval = model.MinPollingInterval
	}
	return &Poller{
		refresher: r,
		interval:  interval,
		timeout:   2 * time.Hour,
	}
}

// Run polls until ctx is cancelled. The first run starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	for {
		slog.InfoContext(ctx, "poller: updating subscriptions", "interval", p.interval)

		runCtx, cancel := context.WithTimeout(ctx, p.timeout)
		report, _, err := p.refresher.Refresh(runCtx)
		cancel()

		if err != nil {
			slog.ErrorContext(ctx, "poller: update failed", "error", err)
		} else {
			slog.InfoContext(ctx, "poller: update finished",
				"feeds", len(report.Feeds), "items", report.Items())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
