package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/minbar-live/translation-service/internal/domain"
)

// dispatcher delivers events for one session on its own goroutine so a slow
// listener socket never blocks the session write path. Enqueue is
// best-effort: when the queue is full the delivery is dropped and the
// listener recovers via backfill.
type dispatcher struct {
	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

type delivery struct {
	conn Conn
	ev   Event
}

func newDispatcher(size int) *dispatcher {
	d := &dispatcher{
		queue: make(chan delivery, size),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for dl := range d.queue {
		if err := dl.conn.Send(dl.ev); err != nil {
			slog.Debug("fanout send dropped", "conn", dl.conn.ID(), "type", dl.ev.Type, "err", err)
		}
	}
	close(d.done)
}

// enqueue must only be called while the owning session still accepts
// writes; the session serializes enqueues against close.
func (d *dispatcher) enqueue(c Conn, ev Event) {
	select {
	case d.queue <- delivery{conn: c, ev: ev}:
	default:
		slog.Debug("fanout queue full, dropping", "conn", c.ID(), "type", ev.Type)
	}
}

func (d *dispatcher) close() {
	d.closeOnce.Do(func() { close(d.queue) })
}

// wait blocks until all queued deliveries have been handed to their conns.
func (d *dispatcher) wait() {
	<-d.done
}

// buildUpdate formats one utterance for one listener according to their
// preference. No translation for the primary language means the original
// text goes out flagged as awaiting.
func buildUpdate(info domain.Session, u domain.Utterance, trs map[domain.Language]domain.Translation, pref domain.Preference) Update {
	upd := Update{
		SessionID:   info.ID,
		UtteranceID: u.ID,
		Seq:         u.Seq,
		Original:    u.Text,
		Context:     u.Context,
		Available:   availableLanguages(trs),
		TSUnix:      u.CreatedAt.Unix(),
	}

	if t, ok := trs[pref.PrimaryLanguage]; ok {
		upd.Primary = toSubtitle(t)
	} else {
		upd.Awaiting = true
	}

	if pref.ShowDualSubtitles && pref.SecondaryLanguage != "" {
		if t, ok := trs[pref.SecondaryLanguage]; ok {
			upd.Secondary = toSubtitle(t)
		}
	}

	return upd
}

func toSubtitle(t domain.Translation) *Subtitle {
	return &Subtitle{
		Language:   t.Language,
		Text:       t.Text,
		Confidence: t.Confidence,
		Source:     t.Source,
	}
}

func availableLanguages(trs map[domain.Language]domain.Translation) []domain.Language {
	langs := lo.Keys(trs)
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}
