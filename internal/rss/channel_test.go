package rss

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPodcastFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Podcast</title>
    <link>https://example.com</link>
    <image><title>Not the channel title</title></image>
    <item>
      <itunes:title>Itunes Episode One</itunes:title>
      <title>Episode &lt;b&gt;One&lt;/b&gt; &amp; more</title>
      <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/ep1.mp3" length="1234" type="audio/mpeg"/>
      <enclosure url="https://example.com/ep1.ogg" length="99" type="audio/ogg"/>
    </item>
    <item>
      <title>No Enclosure</title>
      <pubDate>Tue, 02 Jan 2024 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Bad Date</title>
      <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
      <enclosure url="https://example.com/ep3.mp3" length="1" type="audio/mpeg"/>
    </item>
    <item>
      <pubDate>Wed, 03 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/ep4.mp3" length="1" type="audio/mpeg"/>
    </item>
    <item>
      <title>Empty URL</title>
      <pubDate>Wed, 03 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="" type="audio/mpeg"/>
    </item>
    <item>
      <title>Garbage Length</title>
      <pubDate>2024-01-04 08:00:00</pubDate>
      <enclosure url="episodes/ep6.m4a" length="lots" type="audio/mp4"/>
    </item>
  </channel>
  <channel>
    <title>Second Channel</title>
  </channel>
</rss>`

func TestParse_RSS(t *testing.T) {
	p := NewParser()
	p.Dates = DateParser{Location: time.UTC}

	channels, err := p.Parse(strings.NewReader(testPodcastFeed))
	require.NoError(t, err)
	require.Len(t, channels, 2)

	ch := channels[0]
	assert.Equal(t, "Test Podcast", ch.Title)
	assert.Equal(t, "https://example.com", ch.Link)
	require.Len(t, ch.Items, 6)

	first := ch.Items[0]
	require.True(t, first.Valid())
	assert.Equal(t, "Episode One & more", first.Item.Title)
	assert.Equal(t, "https://example.com/ep1.mp3", first.Item.EnclosureURL)
	assert.Equal(t, int64(1234), first.Item.DeclaredSize)
	assert.Equal(t, "audio/mpeg", first.Item.MimeType)
	assert.True(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Equal(first.Item.PublishedAt))

	assert.ErrorIs(t, ch.Items[1].Err, ErrInvalidItem)
	assert.ErrorIs(t, ch.Items[2].Err, ErrUnrecognizedDate)
	assert.Equal(t, "Bad Date", ch.Items[2].Item.Title)
	assert.ErrorIs(t, ch.Items[3].Err, ErrInvalidItem)
	assert.ErrorIs(t, ch.Items[4].Err, ErrInvalidItem)

	last := ch.Items[5]
	require.True(t, last.Valid())
	assert.Equal(t, int64(0), last.Item.DeclaredSize)
	assert.Equal(t, "episodes/ep6.m4a", last.Item.EnclosureURL)

	assert.Equal(t, "Second Channel", channels[1].Title)
	assert.Empty(t, channels[1].Items)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "truncated", input: `<rss><channel><title>x</title><item>`},
		{name: "not xml", input: `hello there`},
		{name: "no channel", input: `<rss version="2.0"></rss>`},
		{name: "unknown charset", input: `<?xml version="1.0" encoding="x-made-up"?><rss><channel><title>x</title></channel></rss>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformedFeed)
		})
	}
}

func TestParse_Latin1(t *testing.T) {
	// "Caf\xe9" is "Café" in ISO-8859-1.
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<rss><channel><title>Caf\xe9</title></channel></rss>"

	channels, err := NewParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "Café", channels[0].Title)
}

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Cast</title>
  <link href="https://example.com" rel="alternate"/>
  <entry>
    <title>Atom Episode</title>
    <id>atom-1</id>
    <updated>2024-01-01T12:00:00Z</updated>
    <link rel="enclosure" href="https://example.com/a1.mp3" length="42" type="audio/mpeg"/>
  </entry>
  <entry>
    <title>Atom Text Only</title>
    <id>atom-2</id>
    <updated>2024-01-02T12:00:00Z</updated>
  </entry>
</feed>`

func TestParse_Atom(t *testing.T) {
	channels, err := NewParser().Parse(strings.NewReader(testAtomFeed))
	require.NoError(t, err)
	require.Len(t, channels, 1)

	ch := channels[0]
	assert.Equal(t, "Atom Cast", ch.Title)
	require.Len(t, ch.Items, 2)

	require.True(t, ch.Items[0].Valid())
	assert.Equal(t, "https://example.com/a1.mp3", ch.Items[0].Item.EnclosureURL)
	assert.Equal(t, int64(42), ch.Items[0].Item.DeclaredSize)
	assert.True(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Equal(ch.Items[0].Item.PublishedAt))

	assert.ErrorIs(t, ch.Items[1].Err, ErrInvalidItem)
}
