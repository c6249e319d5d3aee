// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrMalformed is returned for documents that are not valid OPML.
var ErrMalformed = errors.New("malformed opml")

// DefaultTitle is the head title of exported documents.
const DefaultTitle = "PodGrab Subscriptions"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Title    string    `xml:"title,attr,omitempty"`
	Text     string    `xml:"text,attr"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry is one feed of a document. Folders are flattened away.
type FeedEntry struct {
	Title string
	URL   string
}

// Parse reads an OPML document and returns a flat list of FeedEntry.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	var entries []FeedEntry
	var walk func(outlines []Outline)
	walk = func(outlines []Outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				// It's a feed.
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, FeedEntry{
					Title: strings.TrimSpace(title),
					URL:   strings.TrimSpace(o.XMLURL),
				})
			} else if len(o.Outlines) > 0 {
				// It's a folder.
				walk(o.Outlines)
			}
		}
	}
	walk(doc.Body.Outlines)
	return entries, nil
}

// Export generates a flat OPML 2.0 document, one rss outline per entry.
// The feed URL doubles as htmlUrl since subscriptions keep no site link.
func Export(title string, entries []FeedEntry, created time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: created.Format(time.RFC1123Z),
		},
	}

	for _, e := range entries {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Title:   e.Title,
			Text:    e.Title,
			Type:    "rss",
			XMLURL:  e.URL,
			HTMLURL: e.URL,
		})
	}

	output, err := xml.MarshalIndent(doc, "", "\t")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

// ExportFileName is the name used for an export made at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("podgrab_subscriptions-%d-%d-%d.opml", t.Year(), int(t.Month()), t.Day())
}
