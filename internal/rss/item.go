package rss

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/bryan-buckman/podgrab/internal/model"
)

// ErrInvalidItem marks an item missing a required field.
var ErrInvalidItem = errors.New("invalid item")

// xmlText captures an element's name so namespaced look-alikes
// (itunes:title, media:title) can be told apart from the plain element.
type xmlText struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type xmlItem struct {
	Titles     []xmlText      `xml:"title"`
	PubDates   []xmlText      `xml:"pubDate"`
	Enclosures []xmlEnclosure `xml:"enclosure"`
}

// ItemResult is either a valid FeedItem or the reason the item was dropped.
type ItemResult struct {
	Item model.FeedItem
	Err  error
}

// Valid reports whether Item can be used.
func (r ItemResult) Valid() bool {
	return r.Err == nil
}

var stripPolicy = bluemonday.StrictPolicy()

// extract builds a FeedItem from a decoded <item>. Structural problems are
// reported before the date is parsed.
func extract(it xmlItem, dates DateParser) ItemResult {
	title, ok := firstPlain(it.Titles)
	if !ok {
		return ItemResult{Err: fmt.Errorf("%w: missing title", ErrInvalidItem)}
	}
	title = displayTitle(title)

	pubDate, ok := firstPlain(it.PubDates)
	if !ok {
		return ItemResult{Item: model.FeedItem{Title: title}, Err: fmt.Errorf("%w: missing pubDate", ErrInvalidItem)}
	}
	if len(it.Enclosures) == 0 {
		return ItemResult{Item: model.FeedItem{Title: title}, Err: fmt.Errorf("%w: no enclosure", ErrInvalidItem)}
	}
	enc := it.Enclosures[0]
	if strings.TrimSpace(enc.URL) == "" {
		return ItemResult{Item: model.FeedItem{Title: title}, Err: fmt.Errorf("%w: enclosure has no url", ErrInvalidItem)}
	}

	item := model.FeedItem{
		Title:        title,
		EnclosureURL: strings.TrimSpace(enc.URL),
		DeclaredSize: parseLength(enc.Length),
		MimeType:     strings.TrimSpace(enc.Type),
	}

	published, err := dates.Parse(pubDate)
	if err != nil {
		return ItemResult{Item: item, Err: err}
	}
	item.PublishedAt = published

	return ItemResult{Item: item}
}

// firstPlain returns the text of the first non-namespaced element with content.
func firstPlain(elems []xmlText) (string, bool) {
	for _, e := range elems {
		if e.XMLName.Space != "" {
			continue
		}
		if v := strings.TrimSpace(e.Value); v != "" {
			return v, true
		}
	}
	return "", false
}

// displayTitle strips markup some feeds embed in titles.
func displayTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// parseLength reads the advisory enclosure length. Missing or garbage
// values count as zero.
func parseLength(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
