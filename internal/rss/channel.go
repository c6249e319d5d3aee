// Package rss provides feed fetching and parsing.
package rss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"github.com/bryan-buckman/podgrab/internal/model"
)

// ErrMalformedFeed is returned when a feed document cannot be decoded.
var ErrMalformedFeed = errors.New("malformed feed")

type xmlChannel struct {
	Titles []xmlText `xml:"title"`
	Links  []xmlText `xml:"link"`
	Items  []xmlItem `xml:"item"`
}

type xmlDocument struct {
	Channels []xmlChannel `xml:"channel"`
}

// Channel is one named grouping of items inside a feed document.
type Channel struct {
	Title string
	Link  string
	Items []ItemResult // document order
}

// Parser decodes feed documents into channels.
type Parser struct {
	Dates DateParser
	feeds *gofeed.Parser
}

// NewParser creates a parser that reads zoneless dates in local time.
func NewParser() *Parser {
	return &Parser{
		Dates: DateParser{Location: time.Local},
		feeds: gofeed.NewParser(),
	}
}

// Parse decodes every channel in the document. RSS documents are decoded
// directly; Atom and JSON feeds go through gofeed's translator and become a
// single channel.
func (p *Parser) Parse(r io.Reader) ([]Channel, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeAtom, gofeed.FeedTypeJSON:
		return p.parseTranslated(data)
	}
	return p.parseRSS(data)
}

func (p *Parser) parseRSS(data []byte) ([]Channel, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var doc xmlDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFeed, err)
	}
	if len(doc.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channel element", ErrMalformedFeed)
	}

	channels := make([]Channel, 0, len(doc.Channels))
	for _, c := range doc.Channels {
		title, _ := firstPlain(c.Titles)
		link, _ := firstPlain(c.Links)
		ch := Channel{
			Title: title,
			Link:  link,
			Items: make([]ItemResult, 0, len(c.Items)),
		}
		for _, it := range c.Items {
			ch.Items = append(ch.Items, extract(it, p.Dates))
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (p *Parser) parseTranslated(data []byte) ([]Channel, error) {
	feed, err := p.feeds.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFeed, err)
	}

	ch := Channel{
		Title: strings.TrimSpace(feed.Title),
		Link:  feed.Link,
		Items: make([]ItemResult, 0, len(feed.Items)),
	}
	for _, it := range feed.Items {
		ch.Items = append(ch.Items, fromGofeed(it))
	}
	return []Channel{ch}, nil
}

func fromGofeed(it *gofeed.Item) ItemResult {
	title := displayTitle(it.Title)
	if title == "" {
		return ItemResult{Err: fmt.Errorf("%w: missing title", ErrInvalidItem)}
	}
	item := model.FeedItem{Title: title}

	published := it.PublishedParsed
	if published == nil {
		published = it.UpdatedParsed
	}
	if published == nil {
		return ItemResult{Item: item, Err: fmt.Errorf("%w: missing publication date", ErrInvalidItem)}
	}
	if len(it.Enclosures) == 0 || strings.TrimSpace(it.Enclosures[0].URL) == "" {
		return ItemResult{Item: item, Err: fmt.Errorf("%w: no enclosure", ErrInvalidItem)}
	}

	enc := it.Enclosures[0]
	item.PublishedAt = *published
	item.EnclosureURL = strings.TrimSpace(enc.URL)
	item.DeclaredSize = parseLength(enc.Length)
	item.MimeType = strings.TrimSpace(enc.Type)
	return ItemResult{Item: item}
}
