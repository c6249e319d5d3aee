// Package download names and fetches enclosure files.
package download

import (
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/bryan-buckman/podgrab/internal/model"
)

// MaxStemLength bounds the URL-derived part of a file name, in characters.
const MaxStemLength = 50

var mimeExtensions = map[string]string{
	"video/quicktime": ".mp4",
	"audio/mp4":       ".mp4",
	"video/mp4":       ".mp4",
	"video/mpeg":      ".mpg",
	"video/x-flv":     ".flv",
	"video/x-ms-wmv":  ".wmv",
	"video/webm":      ".webm",
	"audio/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"video/ogg":       ".ogg",
	"audio/vorbis":    ".ogg",
	"audio/x-ms-wma":  ".wma",
	"audio/x-ms-wax":  ".wma",
}

// ExtensionFor returns the file extension for an exact MIME type, or "".
func ExtensionFor(mimeType string) string {
	return mimeExtensions[mimeType]
}

// Resolver derives local file names for feed items.
type Resolver struct {
	Now func() time.Time
}

// Resolve returns the local file name for item. The date prefix is
// formatted with slashes and then sanitized, so "2024/01/05" + "ep1.mp3"
// becomes "20240105ep1.mp3".
func (r Resolver) Resolve(item model.FeedItem) string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	stem := []rune(baseName(item.EnclosureURL))
	if len(stem) > MaxStemLength {
		stem = stem[:MaxStemLength]
	}

	name := Sanitize(now().Format("2006/01/02") + string(stem))
	if ext := ExtensionFor(item.MimeType); ext != "" && !strings.HasSuffix(name, ext) {
		name += ext
	}
	return name
}

// baseName is the final segment of the URL's path.
func baseName(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// Sanitize reduces s to a safe file or directory name. It keeps letters,
// digits, '-', '.' and whitespace, turns spaces into dashes and folds dash
// runs. The pass is repeated until nothing changes, which makes the result
// stable under re-sanitization.
func Sanitize(s string) string {
	for {
		next := sanitizeOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func sanitizeOnce(s string) string {
	s = strings.TrimLeft(s, "-")
	s = strings.TrimRight(s, "-")

	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsNumber(c) || c == '-' || c == '.' || unicode.IsSpace(c) {
			b.WriteRune(c)
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.ReplaceAll(out, " ", "-")
	out = strings.ReplaceAll(out, "---", "-")
	out = strings.ReplaceAll(out, "--", "-")
	return out
}
