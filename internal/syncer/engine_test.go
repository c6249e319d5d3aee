package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/podgrab/internal/download"
	"github.com/bryan-buckman/podgrab/internal/model"
	"github.com/bryan-buckman/podgrab/internal/rss"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

// fakeFetcher records requests and answers from a per-URL table.
type fakeFetcher struct {
	outcomes map[string]model.Outcome
	err      error
	calls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, dest string) (model.DownloadResult, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return model.DownloadResult{}, f.err
	}
	switch f.outcomes[url] {
	case model.SkippedExists:
		return model.DownloadResult{Outcome: model.SkippedExists, Path: dest}, nil
	case model.Failed:
		return model.DownloadResult{Outcome: model.Failed, Path: dest, Reason: download.ErrNetwork}, nil
	}
	return model.DownloadResult{Outcome: model.Downloaded, Path: dest, Bytes: 1}, nil
}

func newTestEngine(t *testing.T, f Fetcher) *Engine {
	t.Helper()
	e := New(t.TempDir(), model.DefaultMaxDownloadsPerRun, f)
	e.Now = func() time.Time { return testNow }
	e.Resolver = download.Resolver{Now: e.Now}
	return e
}

func validItem(n int, published time.Time) rss.ItemResult {
	return rss.ItemResult{Item: model.FeedItem{
		Title:        fmt.Sprintf("Episode %d", n),
		PublishedAt:  published,
		EnclosureURL: fmt.Sprintf("http://x/ep%d.mp3", n),
		DeclaredSize: 100,
		MimeType:     "audio/mpeg",
	}}
}

func TestSyncChannel_CapsDownloads(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(t, f)

	ch := rss.Channel{Title: "Capped Show"}
	for i := 1; i <= 10; i++ {
		ch.Items = append(ch.Items, validItem(i, testNow.Add(-time.Duration(i)*time.Hour)))
	}
	watermark := testNow.Add(-48 * time.Hour)

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", watermark)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Items)
	assert.Equal(t, int64(400), summary.Bytes)
	assert.Len(t, f.calls, 4)
	assert.True(t, summary.Watermark.Equal(testNow.Add(-4*time.Hour)), "watermark should be the 4th item's date")
}

func TestSyncChannel_NoCap(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(t, f)
	e.MaxPerRun = 0

	ch := rss.Channel{Title: "Bulk"}
	for i := 1; i <= 10; i++ {
		ch.Items = append(ch.Items, validItem(i, testNow.Add(-time.Duration(i)*24*time.Hour)))
	}

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Items)
}

func TestSyncChannel_SkipsAndFailuresDoNotAdvance(t *testing.T) {
	f := &fakeFetcher{outcomes: map[string]model.Outcome{
		"http://x/ep1.mp3": model.SkippedExists,
		"http://x/ep2.mp3": model.Failed,
	}}
	e := newTestEngine(t, f)
	watermark := testNow.Add(-72 * time.Hour)

	ch := rss.Channel{Title: "Nothing New", Items: []rss.ItemResult{
		validItem(1, testNow.Add(-time.Hour)),
		validItem(2, testNow.Add(-2*time.Hour)),
	}}

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", watermark)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Items)
	assert.Equal(t, int64(0), summary.Bytes)
	assert.False(t, summary.Downloaded())
	assert.True(t, summary.Watermark.Equal(watermark))
	assert.Len(t, f.calls, 2)
}

func TestSyncChannel_FailuresDoNotCountTowardCap(t *testing.T) {
	f := &fakeFetcher{outcomes: map[string]model.Outcome{
		"http://x/ep1.mp3": model.Failed,
		"http://x/ep2.mp3": model.SkippedExists,
	}}
	e := newTestEngine(t, f)
	e.MaxPerRun = 2

	ch := rss.Channel{Title: "Mixed"}
	for i := 1; i <= 5; i++ {
		ch.Items = append(ch.Items, validItem(i, testNow.Add(-time.Duration(i)*time.Hour)))
	}

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Items)
	assert.Equal(t, []string{"http://x/ep1.mp3", "http://x/ep2.mp3", "http://x/ep3.mp3", "http://x/ep4.mp3"}, f.calls)
	assert.True(t, summary.Watermark.Equal(testNow.Add(-4*time.Hour)))
}

func TestSyncChannel_EligibilityWindow(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(t, f)
	watermark := testNow.Add(-24 * time.Hour)

	ch := rss.Channel{Title: "Window", Items: []rss.ItemResult{
		validItem(1, testNow.Add(time.Hour)),      // future
		validItem(2, watermark.Add(-time.Second)), // too old
		validItem(3, watermark),                   // exactly at watermark
		validItem(4, testNow),                     // exactly now
	}}

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", watermark)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Items)
	assert.Equal(t, []string{"http://x/ep3.mp3", "http://x/ep4.mp3"}, f.calls)
}

func TestSyncChannel_InvalidItemsAreSkipped(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(t, f)

	ch := rss.Channel{Title: "Broken Items", Items: []rss.ItemResult{
		{Item: model.FeedItem{Title: "No Enclosure"}, Err: rss.ErrInvalidItem},
		{Item: model.FeedItem{Title: "Bad Date"}, Err: rss.ErrUnrecognizedDate},
		validItem(3, testNow.Add(-time.Hour)),
	}}

	summary, err := e.SyncChannel(context.Background(), ch, "http://x/feed", testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)
	assert.Equal(t, []string{"http://x/ep3.mp3"}, f.calls)
}

func TestSyncChannel_FilesystemFailureAbortsChannel(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: disk full", download.ErrFilesystem)}
	e := newTestEngine(t, f)

	ch := rss.Channel{Title: "Disk Full", Items: []rss.ItemResult{
		validItem(1, testNow.Add(-time.Hour)),
		validItem(2, testNow.Add(-2*time.Hour)),
	}}

	_, err := e.SyncChannel(context.Background(), ch, "http://x/feed", testNow.Add(-24*time.Hour))
	assert.ErrorIs(t, err, download.ErrFilesystem)
	assert.Len(t, f.calls, 1)
}

func TestSyncChannel_UntitledChannel(t *testing.T) {
	e := newTestEngine(t, &fakeFetcher{})

	for _, title := range []string{"???", "..", " . "} {
		_, err := e.SyncChannel(context.Background(), rss.Channel{Title: title}, "http://x/feed", testNow)
		assert.ErrorIs(t, err, rss.ErrMalformedFeed, title)
		assert.ErrorIs(t, err, ErrNoChannelDir, title)
	}
}

func TestChannelDir(t *testing.T) {
	e := New("/srv/podcasts", 0, &fakeFetcher{})

	dir, err := e.ChannelDir("My Show!")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/podcasts", "My-Show"), dir)

	dir, err = e.ChannelDir("v1.0 Show")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/podcasts", "v1.0-Show"), dir)

	_, err = e.ChannelDir("../..")
	assert.ErrorIs(t, err, ErrNoChannelDir)
}

func TestSyncChannel_ResolvesRelativeEnclosures(t *testing.T) {
	f := &fakeFetcher{}
	e := newTestEngine(t, f)

	item := validItem(1, testNow.Add(-time.Hour))
	item.Item.EnclosureURL = "media/ep1.mp3"
	ch := rss.Channel{Title: "Relative", Items: []rss.ItemResult{item}}

	_, err := e.SyncChannel(context.Background(), ch, "https://example.com/podcast/feed.xml", testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/podcast/media/ep1.mp3"}, f.calls)
}

func TestSyncChannel_Cancelled(t *testing.T) {
	e := newTestEngine(t, &fakeFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := rss.Channel{Title: "Cancelled", Items: []rss.ItemResult{validItem(1, testNow.Add(-time.Hour))}}
	_, err := e.SyncChannel(ctx, ch, "http://x/feed", testNow.Add(-24*time.Hour))
	assert.True(t, errors.Is(err, context.Canceled))
}

// End-to-end through the real parser and downloader.

const e2eFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>E2E Show</title>
  <item>
    <title>Episode One</title>
    <pubDate>%s</pubDate>
    %s
  </item>
</channel></rss>`

func e2eChannel(t *testing.T, srvURL string, published time.Time, withEnclosure bool) rss.Channel {
	t.Helper()
	enclosure := ""
	if withEnclosure {
		enclosure = fmt.Sprintf(`<enclosure url="%s/ep1.mp3" length="5" type="audio/mpeg"/>`, srvURL)
	}
	doc := fmt.Sprintf(e2eFeed, published.Format("Mon, 02 Jan 2006 15:04:05 -0700"), enclosure)

	channels, err := rss.NewParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	return channels[0]
}

func e2eEngine(t *testing.T) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	t.Cleanup(srv.Close)
	return New(t.TempDir(), model.DefaultMaxDownloadsPerRun, download.NewDownloader(5*time.Second, rss.UserAgent)), srv
}

func TestSyncChannel_EndToEnd(t *testing.T) {
	e, srv := e2eEngine(t)
	now := time.Now().Truncate(time.Second)
	published := now.Add(-time.Minute)

	ch := e2eChannel(t, srv.URL, published, true)
	summary, err := e.SyncChannel(context.Background(), ch, srv.URL+"/feed", now.Add(-24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Items)
	assert.Equal(t, int64(5), summary.Bytes)
	assert.True(t, summary.Watermark.Equal(published))

	today := time.Now()
	want := filepath.Join(e.Root, "E2E-Show", today.Format("20060102")+"ep1.mp3")
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(got))
}

func TestSyncChannel_EndToEndBeforeWatermark(t *testing.T) {
	e, srv := e2eEngine(t)
	now := time.Now().Truncate(time.Second)
	watermark := now.Add(-time.Hour)

	ch := e2eChannel(t, srv.URL, watermark.Add(-time.Hour), true)
	summary, err := e.SyncChannel(context.Background(), ch, srv.URL+"/feed", watermark)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Items)
	assert.True(t, summary.Watermark.Equal(watermark))
}

func TestSyncChannel_EndToEndNoEnclosure(t *testing.T) {
	e, srv := e2eEngine(t)
	now := time.Now().Truncate(time.Second)

	ch := e2eChannel(t, srv.URL, now.Add(-time.Minute), false)
	summary, err := e.SyncChannel(context.Background(), ch, srv.URL+"/feed", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Items)
}
