// Package syncer decides which feed items are new and downloads them.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryan-buckman/podgrab/internal/download"
	"github.com/bryan-buckman/podgrab/internal/logger"
	"github.com/bryan-buckman/podgrab/internal/model"
	"github.com/bryan-buckman/podgrab/internal/rss"
)

// Fetcher downloads one enclosure. See download.Downloader.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (model.DownloadResult, error)
}

// Engine synchronizes channels into per-channel directories under Root.
type Engine struct {
	Root       string
	MaxPerRun  int // 0 means no cap
	Resolver   download.Resolver
	Downloader Fetcher
	Now        func() time.Time
}

// New creates an engine with the given root, cap and downloader.
func New(root string, maxPerRun int, d Fetcher) *Engine {
	return &Engine{
		Root:       root,
		MaxPerRun:  maxPerRun,
		Downloader: d,
		Now:        time.Now,
	}
}

// ErrNoChannelDir is returned for channel titles that do not sanitize to a
// directory name below Root.
var ErrNoChannelDir = errors.New("channel title has no usable directory name")

// ChannelDir returns the directory a channel's files are stored in.
func (e *Engine) ChannelDir(channelTitle string) (string, error) {
	name := download.Sanitize(channelTitle)
	if strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("%w: %q", ErrNoChannelDir, channelTitle)
	}
	return filepath.Join(e.Root, name), nil
}

// SyncChannel downloads every item of ch published between watermark and
// now, in document order, stopping once MaxPerRun items were downloaded.
//
// The summary's Watermark is the publication date of the last item that was
// downloaded, or the input watermark when nothing was. Items are assumed to
// be in feed order, which is usually but not always chronological, so this
// is not necessarily the newest date seen.
//
// A non-nil error means the channel was aborted; the summary still reports
// what was downloaded before that point.
func (e *Engine) SyncChannel(ctx context.Context, ch rss.Channel, feedURL string, watermark time.Time) (model.Summary, error) {
	summary := model.Summary{Channel: ch.Title, Watermark: watermark}

	dir, err := e.ChannelDir(ch.Title)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", rss.ErrMalformedFeed, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return summary, fmt.Errorf("%w: create channel directory: %s", download.ErrFilesystem, err)
	}

	ctx = logger.Ctx(ctx, slog.String("channel", ch.Title))
	slog.InfoContext(ctx, "checking channel for updates", "items", len(ch.Items), "since", watermark)

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	cutoff := now()

	for i, res := range ch.Items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !res.Valid() {
			logInvalid(ctx, i, res)
			continue
		}
		item := res.Item

		if item.PublishedAt.After(cutoff) || item.PublishedAt.Before(watermark) {
			continue
		}

		dest := filepath.Join(dir, e.Resolver.Resolve(item))
		result, err := e.Downloader.Fetch(ctx, enclosureURL(feedURL, item.EnclosureURL), dest)
		if err != nil {
			return summary, fmt.Errorf("download %q: %w", item.Title, err)
		}

		switch result.Outcome {
		case model.Downloaded:
			summary.Items++
			summary.Bytes += item.DeclaredSize
			summary.Watermark = item.PublishedAt
			slog.InfoContext(ctx, "downloaded episode",
				"title", item.Title, "published", item.PublishedAt, "path", dest, "bytes", result.Bytes)
		case model.SkippedExists:
			slog.DebugContext(ctx, "episode already on disk", "title", item.Title, "path", dest)
		case model.Failed:
			slog.ErrorContext(ctx, "episode download failed", "title", item.Title, "url", item.EnclosureURL, "error", result.Reason)
		}

		if e.MaxPerRun > 0 && summary.Items >= e.MaxPerRun {
			slog.InfoContext(ctx, "maximum downloads per run reached", "max", e.MaxPerRun)
			break
		}
	}

	return summary, nil
}

func logInvalid(ctx context.Context, index int, res rss.ItemResult) {
	switch {
	case errors.Is(res.Err, rss.ErrUnrecognizedDate):
		slog.WarnContext(ctx, "skipping item with unparseable date", "index", index, "title", res.Item.Title, "error", res.Err)
	default:
		slog.WarnContext(ctx, "skipping item without downloadable enclosure", "index", index, "title", res.Item.Title, "error", res.Err)
	}
}

// enclosureURL resolves relative enclosure locators against a remote feed.
func enclosureURL(feedURL, raw string) string {
	if !rss.IsRemote(feedURL) {
		return raw
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
