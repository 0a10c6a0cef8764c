package session

import (
	"sync"
	"time"

	"github.com/minbar-live/translation-service/internal/domain"
)

// maxLogEntries bounds per-session memory; appends beyond it fail with
// ErrAppendFailed without consuming a sequence number.
const maxLogEntries = 10000

type member struct {
	p    domain.Participant
	conn Conn
	pref domain.Preference // listeners only
}

// liveSession holds all mutable state of one broadcast. Every mutation goes
// through mu — the single serialized writer per session. Reads copy out
// under the same lock so they always observe a consistent snapshot.
type liveSession struct {
	mu sync.RWMutex

	info  domain.Session
	ended bool

	members      map[string]*member // connID -> member
	log          []domain.Utterance
	byUttID      map[string]int // utteranceID -> index into log
	translations map[string]map[domain.Language]domain.Translation
	nextSeq      int64
	lastActivity time.Time

	disp *dispatcher
}

func newLiveSession(info domain.Session, queueSize int) *liveSession {
	return &liveSession{
		info:         info,
		members:      make(map[string]*member),
		byUttID:      make(map[string]int),
		translations: make(map[string]map[domain.Language]domain.Translation),
		lastActivity: info.StartedAt,
		disp:         newDispatcher(queueSize),
	}
}

// callers hold s.mu
func (s *liveSession) snapshotInfo() domain.Session {
	info := s.info
	info.Languages = append([]domain.Language(nil), s.info.Languages...)
	return info
}

// callers hold s.mu
func (s *liveSession) hasLanguage(lang domain.Language) bool {
	for _, l := range s.info.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// callers hold s.mu
func (s *liveSession) translationsFor(utteranceID string) map[domain.Language]domain.Translation {
	trs := s.translations[utteranceID]
	out := make(map[domain.Language]domain.Translation, len(trs))
	for l, t := range trs {
		out[l] = t
	}
	return out
}

// fanoutUpdate enqueues a per-listener formatted update for one utterance.
// callers hold s.mu
func (s *liveSession) fanoutUpdate(u domain.Utterance) {
	trs := s.translationsFor(u.ID)
	for _, m := range s.members {
		if m.p.Role != domain.RoleListener {
			continue
		}
		s.disp.enqueue(m.conn, Event{
			Type:    EventTranslationUpdate,
			Payload: buildUpdate(s.info, u, trs, m.pref),
		})
	}
}

// broadcast enqueues ev to every member. callers hold s.mu
func (s *liveSession) broadcast(ev Event) {
	for _, m := range s.members {
		s.disp.enqueue(m.conn, ev)
	}
}

// backfill replays the recent log to one listener, formatted to their
// preference, oldest first. callers hold s.mu
func (s *liveSession) backfill(m *member, limit int) {
	start := 0
	if len(s.log) > limit {
		start = len(s.log) - limit
	}
	for _, u := range s.log[start:] {
		s.disp.enqueue(m.conn, Event{
			Type:    EventTranslationUpdate,
			Payload: buildUpdate(s.info, u, s.translationsFor(u.ID), m.pref),
		})
	}
}

// callers hold s.mu
func (s *liveSession) translationCount() int64 {
	var n int64
	for _, trs := range s.translations {
		n += int64(len(trs))
	}
	return n
}

// callers hold s.mu
func (s *liveSession) stateSnapshot() StatePayload {
	items := make([]ParticipantStateItem, 0, len(s.members))
	for _, m := range s.members {
		items = append(items, ParticipantStateItem{
			UserID:   m.p.UserID,
			Role:     m.p.Role,
			Language: m.p.Language,
			JoinedAt: m.p.JoinedAt.Unix(),
		})
	}
	return StatePayload{
		SessionID:      s.info.ID,
		MosqueID:       s.info.MosqueID,
		SourceLanguage: s.info.SourceLanguage,
		Languages:      append([]domain.Language(nil), s.info.Languages...),
		Participants:   items,
	}
}
