// Package podcasts drives subscription operations over the store, the feed
// source and the sync engine.
package podcasts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bryan-buckman/podgrab/internal/database"
	"github.com/bryan-buckman/podgrab/internal/model"
	"github.com/bryan-buckman/podgrab/internal/rss"
	"github.com/bryan-buckman/podgrab/internal/syncer"
)

// Operation is one user request. The concrete types below are the only
// implementations.
type Operation interface {
	isOperation()
}

type (
	// Subscribe adds a feed and, unless NoDownload is set, syncs it once.
	Subscribe struct {
		URL        string
		NoDownload bool
	}
	// Update syncs every subscription and persists advanced watermarks.
	Update struct{}
	// Download syncs every channel of a URL or file without a watermark.
	// Max caps downloads per channel; 0 means no cap. Nothing is persisted.
	Download struct {
		Locator string
		Max     int
	}
	// Unsubscribe removes a subscription and its channel directory.
	Unsubscribe struct {
		URL string
	}
	// List returns all subscriptions.
	List struct{}
	// Import adds the feeds of an OPML document read from Body, or from
	// Path when Body is nil.
	Import struct {
		Path string
		Body io.Reader
	}
	// Export writes an OPML document of all subscriptions into Dir.
	Export struct {
		Dir string
	}
	MailAdd struct {
		Address string
	}
	MailDelete struct {
		Address string
	}
	MailList struct{}
)

func (Subscribe) isOperation()   {}
func (Update) isOperation()      {}
func (Download) isOperation()    {}
func (Unsubscribe) isOperation() {}
func (List) isOperation()        {}
func (Import) isOperation()      {}
func (Export) isOperation()      {}
func (MailAdd) isOperation()     {}
func (MailDelete) isOperation()  {}
func (MailList) isOperation()    {}

// Result carries what an operation produced. Only the fields relevant to
// the operation are set.
type Result struct {
	Report        *Report
	Subscriptions []model.Subscription
	Addresses     []string
	Added         int
	Path          string
	// Notice describes a request that needed no change, such as
	// subscribing to a feed twice.
	Notice string
}

// Mailer sends update reports. See notify.SMTPMailer.
type Mailer interface {
	SendUpdate(ctx context.Context, to []string, items int, body string) error
}

// Service executes operations. It is safe for concurrent use.
type Service struct {
	store  database.Store
	source *rss.Source
	parser *rss.Parser
	engine *syncer.Engine
	mailer Mailer
	now    func() time.Time

	// locks keeps subscribe, update and unsubscribe of one feed from
	// interleaving.
	locks feedLocks
}

// New creates a service. mailer may be nil to disable update mails.
func New(store database.Store, source *rss.Source, parser *rss.Parser, engine *syncer.Engine, mailer Mailer) *Service {
	return &Service{
		store:  store,
		source: source,
		parser: parser,
		engine: engine,
		mailer: mailer,
		now:    time.Now,
	}
}

// Run executes op.
func (s *Service) Run(ctx context.Context, op Operation) (Result, error) {
	switch op := op.(type) {
	case Subscribe:
		return s.Subscribe(ctx, op.URL, op.NoDownload)
	case Update:
		report, err := s.Update(ctx)
		return Result{Report: report}, err
	case Download:
		report, err := s.Download(ctx, op.Locator, op.Max)
		return Result{Report: report}, err
	case Unsubscribe:
		return s.Unsubscribe(ctx, op.URL)
	case List:
		subs, err := s.store.ListSubscriptions(ctx)
		return Result{Subscriptions: subs}, err
	case Import:
		return s.Import(ctx, op.Path, op.Body)
	case Export:
		path, err := s.ExportToDir(ctx, op.Dir)
		return Result{Path: path}, err
	case MailAdd:
		return s.AddMailAddress(ctx, op.Address)
	case MailDelete:
		return s.DeleteMailAddress(ctx, op.Address)
	case MailList:
		addrs, err := s.store.MailAddresses(ctx)
		return Result{Addresses: addrs}, err
	default:
		return Result{}, fmt.Errorf("unsupported operation %T", op)
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// SetClock replaces the clock used for default watermarks and export dates.
// Call it before the service is shared.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
