package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrUnavailable is returned when a feed document cannot be opened.
var ErrUnavailable = errors.New("feed unavailable")

// UserAgent is sent with every feed and enclosure request.
const UserAgent = "podgrab/1.1"

// Source opens feed documents from http(s) URLs or local files.
type Source struct {
	Client  *http.Client
	Retries uint64
	Backoff time.Duration
}

// NewSource creates a source with the given per-request timeout.
func NewSource(timeout time.Duration, retries uint64) *Source {
	return &Source{
		Client:  &http.Client{Timeout: timeout},
		Retries: retries,
		Backoff: 500 * time.Millisecond,
	}
}

// IsRemote reports whether locator is fetched over http(s).
func IsRemote(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Fetch returns the raw document behind locator.
func (s *Source) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if IsRemote(locator) {
		return s.fetchRemote(ctx, locator)
	}

	path := strings.TrimPrefix(locator, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return data, nil
}

func (s *Source) fetchRemote(ctx context.Context, feedURL string) ([]byte, error) {
	var body []byte
	backoff := retry.WithMaxRetries(s.Retries, retry.NewFibonacci(s.Backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := s.Client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("bad http response: %s", resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("bad http response: %s", resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response body: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, feedURL, err)
	}
	return body, nil
}

// Channels fetches and parses locator in one step.
func (s *Source) Channels(ctx context.Context, p *Parser, locator string) ([]Channel, error) {
	data, err := s.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	return p.Parse(bytes.NewReader(data))
}
