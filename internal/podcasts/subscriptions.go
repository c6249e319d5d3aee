package podcasts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/podgrab/internal/database"
	"github.com/bryan-buckman/podgrab/internal/download"
	"github.com/bryan-buckman/podgrab/internal/logger"
	"github.com/bryan-buckman/podgrab/internal/model"
	"github.com/bryan-buckman/podgrab/internal/opml"
)

// Subscribe adds feedURL under the title of its first channel. Unless
// noDownload is set the feed is synced right away, starting from the
// default watermark, and an advanced watermark is stored.
func (s *Service) Subscribe(ctx context.Context, feedURL string, noDownload bool) (Result, error) {
	ctx = logger.Ctx(ctx, slog.String("feed", feedURL))
	unlock := s.locks.lock(feedURL)
	defer unlock()

	if _, err := s.store.GetSubscription(ctx, feedURL); err == nil {
		return Result{Notice: "subscription already exists"}, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return Result{}, fmt.Errorf("look up subscription: %w", err)
	}

	channels, err := s.source.Channels(ctx, s.parser, feedURL)
	if err != nil {
		return Result{}, err
	}
	name := channels[0].Title

	if err := s.store.InsertSubscription(ctx, name, feedURL); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return Result{Notice: "subscription already exists"}, nil
		}
		return Result{}, fmt.Errorf("insert subscription: %w", err)
	}
	slog.InfoContext(ctx, "subscribed", "channel", name)

	if noDownload {
		if err := s.ensureChannelDir(name); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	watermark := s.now().Add(-model.DefaultWatermarkAge)
	fr, err := s.syncFeed(ctx, s.engine, name, feedURL, channels, watermark, true)
	return Result{Report: &Report{Feeds: []FeedReport{fr}}}, err
}

// Download syncs every channel of locator from the beginning of time,
// downloading at most limit episodes per channel (0 for all). The store is
// not touched.
func (s *Service) Download(ctx context.Context, locator string, limit int) (*Report, error) {
	channels, err := s.source.Channels(ctx, s.parser, locator)
	if err != nil {
		return nil, err
	}

	engine := *s.engine
	engine.MaxPerRun = limit

	fr, err := s.syncFeed(ctx, &engine, channels[0].Title, locator, channels, time.Time{}, false)
	return &Report{Feeds: []FeedReport{fr}}, err
}

// Unsubscribe deletes the subscription for feedURL and its channel
// directory, waiting for a sync of the same feed to finish first. The
// removed subscription is returned in the result. Unknown feeds and missing
// directories are reported in the result's Notice.
func (s *Service) Unsubscribe(ctx context.Context, feedURL string) (Result, error) {
	unlock := s.locks.lock(feedURL)
	defer unlock()

	sub, err := s.store.GetSubscription(ctx, feedURL)
	if errors.Is(err, database.ErrNotFound) {
		return Result{Notice: "feed is not subscribed"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("look up subscription: %w", err)
	}

	if err := s.store.DeleteSubscription(ctx, feedURL); err != nil {
		return Result{}, fmt.Errorf("delete subscription: %w", err)
	}

	res := Result{Subscriptions: []model.Subscription{sub}}

	dir, err := s.engine.ChannelDir(sub.ChannelName)
	if err != nil {
		res.Notice = "no channel directory to remove"
		return res, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		res.Notice = "channel directory not found, it may have been deleted manually"
		return res, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return res, fmt.Errorf("%w: remove %s: %s", download.ErrFilesystem, dir, err)
	}
	slog.InfoContext(ctx, "unsubscribed", "channel", sub.ChannelName, "dir", dir)
	res.Path = dir
	return res, nil
}

// Import subscribes to every feed of an OPML document without syncing.
// Feeds already present are skipped. Result.Added counts new ones.
func (s *Service) Import(ctx context.Context, path string, body io.Reader) (Result, error) {
	if body == nil {
		f, err := os.Open(path)
		if err != nil {
			return Result{}, fmt.Errorf("open opml file: %w", err)
		}
		defer f.Close()
		body = f
	}

	entries, err := opml.Parse(body)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, e := range entries {
		name := e.Title
		if name == "" {
			name = e.URL
		}
		if err := s.ensureChannelDir(name); err != nil {
			return res, err
		}
		err := s.store.InsertSubscription(ctx, name, e.URL)
		if errors.Is(err, database.ErrConflict) {
			slog.InfoContext(ctx, "subscription already present, skipping", "feed", e.URL)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("insert subscription: %w", err)
		}
		res.Added++
	}
	slog.InfoContext(ctx, "opml imported", "entries", len(entries), "added", res.Added)
	return res, nil
}

// ExportOPML renders all subscriptions as an OPML document.
func (s *Service) ExportOPML(ctx context.Context) ([]byte, error) {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	entries := make([]opml.FeedEntry, 0, len(subs))
	for _, sub := range subs {
		entries = append(entries, opml.FeedEntry{Title: sub.ChannelName, URL: sub.FeedURL})
	}
	return opml.Export(opml.DefaultTitle, entries, s.now())
}

// ExportToDir writes ExportOPML into dir and returns the file's path.
func (s *Service) ExportToDir(ctx context.Context, dir string) (string, error) {
	data, err := s.ExportOPML(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, opml.ExportFileName(s.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %s", download.ErrFilesystem, path, err)
	}
	return path, nil
}

func (s *Service) AddMailAddress(ctx context.Context, address string) (Result, error) {
	if _, err := mail.ParseAddress(address); err != nil {
		return Result{}, fmt.Errorf("invalid mail address %q: %w", address, err)
	}
	if err := s.store.AddMailAddress(ctx, address); err != nil {
		return Result{}, err
	}
	return Result{Addresses: []string{address}}, nil
}

func (s *Service) DeleteMailAddress(ctx context.Context, address string) (Result, error) {
	if err := s.store.DeleteMailAddress(ctx, address); err != nil {
		return Result{}, err
	}
	return Result{Addresses: []string{address}}, nil
}

// ensureChannelDir creates the directory for a channel. Titles without a
// usable directory name are left for the sync to report.
func (s *Service) ensureChannelDir(name string) error {
	dir, err := s.engine.ChannelDir(name)
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create channel directory: %s", download.ErrFilesystem, err)
	}
	return nil
}
