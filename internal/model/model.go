// Package model defines shared data structures.
package model

import "time"

// Subscription is a podcast feed the user follows.
type Subscription struct {
	ChannelName string     `db:"channel" json:"channel"`
	FeedURL     string     `db:"feed" json:"feed"`
	Watermark   *time.Time `db:"last_ep" json:"last_ep,omitempty"` // nil until the first successful download
}

// FeedItem is one enclosure-bearing entry extracted from a channel.
type FeedItem struct {
	Title        string
	PublishedAt  time.Time
	EnclosureURL string
	DeclaredSize int64 // advisory, as declared by the feed
	MimeType     string
}

// Outcome classifies what happened to a single enclosure download.
type Outcome int

const (
	Downloaded Outcome = iota
	SkippedExists
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case SkippedExists:
		return "skipped-exists"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// DownloadResult is produced once per processed FeedItem.
type DownloadResult struct {
	Outcome Outcome
	Path    string
	Bytes   int64 // bytes written; only meaningful for Downloaded
	Reason  error // set for Failed
}

// Summary aggregates one channel sync.
type Summary struct {
	Channel   string
	Items     int
	Bytes     int64 // sum of feed-declared sizes of downloaded items
	Watermark time.Time
	Err       error // set when the channel was aborted
}

// Downloaded reports whether the channel advanced its watermark.
func (s Summary) Downloaded() bool {
	return s.Items > 0
}

// Default policy values.
const (
	DefaultMaxDownloadsPerRun = 4
	DefaultWatermarkAge       = 7 * 24 * time.Hour

	// MinPollingInterval is the shortest allowed interval between
	// background update runs.
	MinPollingInterval = 15 * time.Minute
)
