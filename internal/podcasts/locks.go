package podcasts

import "sync"

// feedLocks serializes work on a single feed. Entries are dropped once no
// caller holds or waits for them.
type feedLocks struct {
	mu    sync.Mutex
	feeds map[string]*feedLock
}

type feedLock struct {
	sync.Mutex
	refs int
}

// lock blocks until feedURL is free and returns the matching unlock.
func (l *feedLocks) lock(feedURL string) (unlock func()) {
	l.mu.Lock()
	if l.feeds == nil {
		l.feeds = map[string]*feedLock{}
	}
	fl, ok := l.feeds[feedURL]
	if !ok {
		fl = &feedLock{}
		l.feeds[feedURL] = fl
	}
	fl.refs++
	l.mu.Unlock()

	fl.Lock()
	return func() {
		fl.Unlock()
		l.mu.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(l.feeds, feedURL)
		}
		l.mu.Unlock()
	}
}
