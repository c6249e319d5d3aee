package podcasts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/podgrab/internal/database"
	"github.com/bryan-buckman/podgrab/internal/logger"
	"github.com/bryan-buckman/podgrab/internal/model"
	"github.com/bryan-buckman/podgrab/internal/rss"
	"github.com/bryan-buckman/podgrab/internal/syncer"
)

// FeedReport is the outcome of syncing one feed.
type FeedReport struct {
	Name     string
	FeedURL  string
	Channels []model.Summary
	// Err is set when the feed could not be fetched or parsed.
	Err error
}

// Items is the number of episodes downloaded across all channels.
func (r FeedReport) Items() int {
	n := 0
	for _, c := range r.Channels {
		n += c.Items
	}
	return n
}

// Bytes is the declared size of the downloaded episodes.
func (r FeedReport) Bytes() int64 {
	var n int64
	for _, c := range r.Channels {
		n += c.Bytes
	}
	return n
}

// Report is the outcome of a sync run over one or more feeds.
type Report struct {
	RunID string
	Feeds []FeedReport
}

func (r *Report) Items() int {
	n := 0
	for _, f := range r.Feeds {
		n += f.Items()
	}
	return n
}

func (r *Report) Bytes() int64 {
	var n int64
	for _, f := range r.Feeds {
		n += f.Bytes()
	}
	return n
}

// String renders the report as the plain-text body of an update mail.
func (r *Report) String() string {
	var b strings.Builder
	for _, f := range r.Feeds {
		if f.Err != nil {
			fmt.Fprintf(&b, "0 podcasts have been downloaded from %s: %v\n", f.Name, f.Err)
			continue
		}
		for _, c := range f.Channels {
			fmt.Fprintf(&b, "%d podcasts totalling %d bytes have been downloaded from your subscription: '%s'\n",
				c.Items, c.Bytes, c.Channel)
			if c.Err != nil {
				fmt.Fprintf(&b, "  stopped early: %v\n", c.Err)
			}
		}
	}
	fmt.Fprintf(&b, "\n%d podcasts totalling %d bytes have been downloaded.\n", r.Items(), r.Bytes())
	return b.String()
}

// Update syncs every subscription in store order. Feed and channel errors
// are recorded in the report and do not stop the run; a store error does.
func (s *Service) Update(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	ctx = logger.Ctx(ctx, slog.String("run", report.RunID))

	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return report, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		slog.InfoContext(ctx, "no subscriptions")
		return report, nil
	}
	slog.InfoContext(ctx, "updating subscriptions", "count", len(subs))

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "update cancelled", "done", i, "total", len(subs))
			return report, err
		}

		fr, ok, err := s.updateFeed(ctx, sub.FeedURL)
		if ok {
			report.Feeds = append(report.Feeds, fr)
		}
		if err != nil {
			return report, err
		}
	}

	slog.InfoContext(ctx, "update finished", "items", report.Items(), "bytes", report.Bytes())
	s.notify(ctx, report)
	return report, nil
}

// updateFeed syncs one subscription while holding its feed lock. The
// subscription is read again under the lock; ok is false when it was removed
// in the meantime.
func (s *Service) updateFeed(ctx context.Context, feedURL string) (fr FeedReport, ok bool, err error) {
	unlock := s.locks.lock(feedURL)
	defer unlock()

	sub, err := s.store.GetSubscription(ctx, feedURL)
	if errors.Is(err, database.ErrNotFound) {
		slog.InfoContext(ctx, "subscription removed during update, skipping", "feed", feedURL)
		return FeedReport{}, false, nil
	}
	if err != nil {
		return FeedReport{}, false, fmt.Errorf("look up subscription: %w", err)
	}

	watermark := s.now().Add(-model.DefaultWatermarkAge)
	if sub.Watermark != nil {
		watermark = *sub.Watermark
	}
	fr, err = s.syncFeed(ctx, s.engine, sub.ChannelName, sub.FeedURL, nil, watermark, true)
	return fr, true, err
}

// syncFeed syncs every channel of a feed. channels may be passed when the
// feed was already parsed. When persist is set and any channel downloaded,
// the candidate watermark of the last such channel is stored. A feed that
// is no longer subscribed keeps no watermark.
//
// Only store failures are returned as errors.
func (s *Service) syncFeed(ctx context.Context, engine *syncer.Engine, name, feedURL string, channels []rss.Channel, watermark time.Time, persist bool) (FeedReport, error) {
	ctx = logger.Ctx(ctx, slog.String("feed", feedURL))
	fr := FeedReport{Name: name, FeedURL: feedURL}

	if channels == nil {
		var err error
		channels, err = s.source.Channels(ctx, s.parser, feedURL)
		if err != nil {
			slog.ErrorContext(ctx, "feed unavailable, skipping", "error", err)
			fr.Err = err
			return fr, nil
		}
	}

	var (
		candidate time.Time
		advanced  bool
	)
	for _, ch := range channels {
		summary, err := engine.SyncChannel(ctx, ch, feedURL, watermark)
		if err != nil {
			slog.ErrorContext(ctx, "channel sync aborted", "channel", ch.Title, "error", err)
			summary.Err = err
		}
		fr.Channels = append(fr.Channels, summary)
		if summary.Downloaded() {
			candidate = summary.Watermark
			advanced = true
		}
		if ctx.Err() != nil {
			break
		}
	}

	if persist && advanced {
		// Downloads that completed before a cancellation still count.
		err := s.store.UpdateWatermark(context.WithoutCancel(ctx), feedURL, candidate)
		if errors.Is(err, database.ErrNotFound) {
			slog.WarnContext(ctx, "feed unsubscribed during sync, watermark dropped", "watermark", candidate)
			return fr, nil
		}
		if err != nil {
			return fr, fmt.Errorf("store watermark for %s: %w", feedURL, err)
		}
		slog.DebugContext(ctx, "watermark advanced", "watermark", candidate)
	}
	return fr, nil
}

func (s *Service) notify(ctx context.Context, report *Report) {
	if s.mailer == nil {
		return
	}
	addrs, err := s.store.MailAddresses(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "could not load mail addresses", "error", err)
		return
	}
	if len(addrs) == 0 {
		return
	}
	if err := s.mailer.SendUpdate(ctx, addrs, report.Items(), report.String()); err != nil {
		slog.ErrorContext(ctx, "update mail not sent", "error", err)
	}
}
