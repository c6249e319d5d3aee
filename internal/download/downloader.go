package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/podgrab/internal/model"
)

var (
	// ErrNetwork wraps transfer failures; the item is marked failed.
	ErrNetwork = errors.New("network failure")
	// ErrFilesystem wraps local write failures; the channel cannot continue.
	ErrFilesystem = errors.New("filesystem failure")
)

// Downloader fetches enclosures to local paths.
type Downloader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewDownloader creates a downloader. A zero timeout means no per-download
// deadline.
func NewDownloader(timeout time.Duration, userAgent string) *Downloader {
	return &Downloader{
		client:    &http.Client{},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Fetch downloads url into dest. An existing dest is never re-fetched or
// verified. Network problems come back as a Failed result; the returned
// error is only set for filesystem failures.
//
// The payload is streamed into a temporary file next to dest and renamed
// into place once complete, so an interrupted transfer never leaves a
// truncated file under the final name.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) (model.DownloadResult, error) {
	if _, err := os.Stat(dest); err == nil {
		return model.DownloadResult{Outcome: model.SkippedExists, Path: dest}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return model.DownloadResult{}, fmt.Errorf("%w: stat %s: %s", ErrFilesystem, dest, err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	failed := func(err error) model.DownloadResult {
		return model.DownloadResult{Outcome: model.Failed, Path: dest, Reason: fmt.Errorf("%w: %s", ErrNetwork, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failed(err), nil
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return failed(err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(fmt.Errorf("bad http response: %s", resp.Status)), nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".podgrab-*.part")
	if err != nil {
		return model.DownloadResult{}, fmt.Errorf("%w: %s", ErrFilesystem, err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	w := &trackingWriter{w: tmp}
	n, copyErr := io.Copy(w, resp.Body)
	closeErr := tmp.Close()

	switch {
	case w.err != nil:
		return model.DownloadResult{}, fmt.Errorf("%w: write %s: %s", ErrFilesystem, dest, w.err)
	case copyErr != nil:
		return failed(copyErr), nil
	case closeErr != nil:
		return model.DownloadResult{}, fmt.Errorf("%w: close %s: %s", ErrFilesystem, dest, closeErr)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return model.DownloadResult{}, fmt.Errorf("%w: %s", ErrFilesystem, err)
	}

	slog.DebugContext(ctx, "enclosure written", "path", dest, "bytes", n)
	return model.DownloadResult{Outcome: model.Downloaded, Path: dest, Bytes: n}, nil
}

// trackingWriter remembers write errors so they can be told apart from
// errors reading the response body.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
