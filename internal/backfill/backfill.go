// Package backfill replaces the message history with the channel archive
// the transport can page through.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
)

// PageInterval spaces archive requests to stay under the Web API rate
// limits.
const PageInterval = time.Second

// Store is the history store the archive is written to.
type Store interface {
	Clear(ctx context.Context) (int64, error)
	Store(ctx context.Context, rec domain.HistoryRecord) error
}

// Loader wipes the history store and refills it from the archive of every
// channel in the roster.
type Loader struct {
	archive   domain.Archive
	dir       *directory.Directory
	history   Store
	addressed func(text string) bool
	limiter   *rate.Limiter
	log       *logging.Logger
}

// New creates a loader. Messages for which addressed returns true are
// skipped, matching what the dispatcher keeps; addressed may be nil.
func New(archive domain.Archive, dir *directory.Directory, history Store, addressed func(string) bool, log *logging.Logger) *Loader {
	return &Loader{
		archive:   archive,
		dir:       dir,
		history:   history,
		addressed: addressed,
		limiter:   rate.NewLimiter(rate.Every(PageInterval), 1),
		log:       log.Sub("backfill"),
	}
}

// Run loads the archive. It has the supervisor.Task signature. A channel
// whose archive cannot be read is skipped; the errors are joined into the
// result. A disconnect aborts the run.
func (l *Loader) Run(ctx context.Context, roster *domain.Roster) error {
	cleared, err := l.history.Clear(ctx)
	if err != nil {
		return err
	}
	l.log.Info().Int64("removed", cleared).Msg("history cleared")

	var errs []error
	total := 0
	for _, ch := range roster.Channels {
		n, err := l.channel(ctx, ch, roster.Self.ID)
		total += n
		if err != nil {
			if errors.Is(err, domain.ErrDisconnected) || ctx.Err() != nil {
				return err
			}
			l.log.Warn().Err(err).Str("channel", ch.Name).Msg("channel archive skipped")
			errs = append(errs, err)
			continue
		}
		l.log.Info().Str("channel", ch.Name).Int("stored", n).Msg("channel archive loaded")
	}
	l.log.Info().Int("stored", total).Int("channels", len(roster.Channels)).Msg("history loaded")
	return errors.Join(errs...)
}

func (l *Loader) channel(ctx context.Context, ch domain.Entry, self string) (int, error) {
	stored := 0
	cursor := ""
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return stored, err
		}
		page, err := l.archive.HistoryPage(ctx, ch.ID, cursor)
		if err != nil {
			return stored, fmt.Errorf("archive of %s: %w", ch.Name, err)
		}
		for _, ev := range page.Messages {
			if !l.keep(ev, self) {
				continue
			}
			if err := l.history.Store(ctx, l.record(ev, ch)); err != nil {
				return stored, err
			}
			stored++
		}
		if page.Next == "" {
			return stored, nil
		}
		cursor = page.Next
	}
}

func (l *Loader) keep(ev domain.DispatchEvent, self string) bool {
	switch {
	case ev.Kind != domain.EventMessage, ev.Direct, ev.Text == "":
		return false
	case self != "" && ev.UserID == self:
		return false
	case l.addressed != nil && l.addressed(ev.Text):
		return false
	}
	return true
}

func (l *Loader) record(ev domain.DispatchEvent, ch domain.Entry) domain.HistoryRecord {
	user := ev.User
	if user == "" {
		user = ev.UserID
		if name, ok := l.dir.UserName(ev.UserID); ok {
			user = name
		}
	}
	channel := ch.Name
	if name, ok := l.dir.ChannelName(ch.ID); ok {
		channel = name
	} else if channel == "" {
		channel = ch.ID
	}
	return domain.HistoryRecord{
		Channel:   channel,
		User:      user,
		Text:      ev.Text,
		Timestamp: ev.Timestamp,
	}
}
