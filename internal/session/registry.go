package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/minbar-live/translation-service/internal/domain"
)

const (
	defaultQueueSize   = 256
	defaultIdleTimeout = 10 * time.Minute
	maxUtteranceLen    = 4000
	maxRecentLimit     = 100
	defaultRecentLimit = 50
	backfillLimit      = 100
)

// PreferenceSource resolves display preferences for a user. Missing users
// should be reported with an error; the registry falls back to defaults.
type PreferenceSource interface {
	Preference(ctx context.Context, userID int64) (domain.Preference, error)
}

// HistoryRecorder persists the end-of-session summary.
type HistoryRecorder interface {
	RecordSummary(ctx context.Context, sum domain.SessionSummary) error
}

// Registry owns every live session: creation, lookup, teardown. Mutations
// of a single session are serialized through that session's lock; sessions
// are fully independent of each other.
type Registry struct {
	prefs   PreferenceSource
	history HistoryRecorder

	mu       sync.RWMutex
	sessions map[string]*liveSession
	byMosque map[string]string // mosqueID -> sessionID

	idleTimeout time.Duration
	queueSize   int

	onUtterance func(sessionID string, u domain.Utterance)
}

func NewRegistry(prefs PreferenceSource, history HistoryRecorder) *Registry {
	return &Registry{
		prefs:       prefs,
		history:     history,
		sessions:    make(map[string]*liveSession),
		byMosque:    make(map[string]string),
		idleTimeout: defaultIdleTimeout,
		queueSize:   defaultQueueSize,
	}
}

// SetPreferenceSource breaks the construction cycle: the preference
// service needs the registry as its refresher, so the source is attached
// after both exist. Must be called before the first listener joins.
func (r *Registry) SetPreferenceSource(prefs PreferenceSource) {
	r.prefs = prefs
}

func (r *Registry) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		r.idleTimeout = d
	}
}

func (r *Registry) SetQueueSize(n int) {
	if n > 0 {
		r.queueSize = n
	}
}

// OnUtterance registers a hook invoked after every accepted utterance,
// outside the session lock. Used by the machine-translation scheduler.
func (r *Registry) OnUtterance(fn func(sessionID string, u domain.Utterance)) {
	r.onUtterance = fn
}

// Create starts a broadcast for a mosque. A mosque can run at most one
// active session; the session is Active immediately.
func (r *Registry) Create(ctx context.Context, mosqueID, broadcasterConnID string, source domain.Language, languages []domain.Language) (domain.Session, error) {
	mosqueID = strings.TrimSpace(mosqueID)
	if mosqueID == "" || source == "" {
		return domain.Session{}, fmt.Errorf("%w: mosque id and source language are required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byMosque[mosqueID]; ok {
		// a reconnecting broadcaster gets its own session back
		if s := r.sessions[existing]; s != nil && broadcasterConnID != "" {
			s.mu.RLock()
			info := s.snapshotInfo()
			s.mu.RUnlock()
			if info.BroadcasterConnID == broadcasterConnID {
				return info, nil
			}
		}
		return domain.Session{}, fmt.Errorf("%w: session %s", domain.ErrDuplicateBroadcast, existing)
	}

	info := domain.Session{
		ID:                uuid.NewString(),
		MosqueID:          mosqueID,
		BroadcasterConnID: broadcasterConnID,
		SourceLanguage:    source,
		Languages:         lo.Uniq(languages),
		State:             domain.SessionActive,
		StartedAt:         time.Now(),
	}

	s := newLiveSession(info, r.queueSize)
	r.sessions[info.ID] = s
	r.byMosque[mosqueID] = info.ID

	slog.Info("session created",
		"session", info.ID, "mosque", mosqueID, "languages", info.Languages)

	return s.snapshotInfo(), nil
}

// Get returns a copy of the session record.
func (r *Registry) Get(sessionID string) (domain.Session, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotInfo(), nil
}

// ListActive returns active sessions, optionally filtered by mosque.
func (r *Registry) ListActive(mosqueID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.RLock()
		if mosqueID == "" || s.info.MosqueID == mosqueID {
			out = append(out, s.snapshotInfo())
		}
		s.mu.RUnlock()
	}
	return out
}

// Join adds a participant. Multiple translators per language are fine: the
// first submitted translation wins until a later one overwrites it. A
// second broadcaster connection is rejected.
func (r *Registry) Join(ctx context.Context, sessionID string, conn Conn, userID int64, role domain.Role, lang domain.Language) (int, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return 0, err
	}

	var pref domain.Preference
	if role == domain.RoleListener {
		pref = r.resolvePreference(ctx, s, userID)
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return 0, domain.ErrSessionNotFound
	}
	if role == domain.RoleTranslator && lang == "" {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: translator join requires a language", domain.ErrValidation)
	}
	if role == domain.RoleBroadcaster {
		for _, m := range s.members {
			if m.p.Role == domain.RoleBroadcaster {
				s.mu.Unlock()
				return 0, domain.ErrDuplicateBroadcast
			}
		}
		s.info.BroadcasterConnID = conn.ID()
	}
	if role == domain.RoleTranslator && !s.hasLanguage(lang) {
		// languages only grow while a session is active
		s.info.Languages = append(s.info.Languages, lang)
	}

	m := &member{
		p: domain.Participant{
			ConnID:    conn.ID(),
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			Language:  lang,
			JoinedAt:  time.Now(),
		},
		conn: conn,
		pref: pref,
	}
	s.members[conn.ID()] = m
	count := len(s.members)

	if role == domain.RoleBroadcaster {
		// the broadcast goes live when its speaker attaches
		s.broadcast(Event{
			Type: EventSessionStarted,
			Payload: SessionStartedPayload{
				SessionID:      sessionID,
				MosqueID:       s.info.MosqueID,
				SourceLanguage: s.info.SourceLanguage,
				Languages:      append([]domain.Language(nil), s.info.Languages...),
			},
		})
	}
	s.broadcast(Event{
		Type: EventParticipantJoined,
		Payload: ParticipantEventPayload{
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			Language:  lang,
			Count:     count,
		},
	})
	if role == domain.RoleListener {
		s.backfill(m, backfillLimit)
	}
	s.mu.Unlock()

	return count, nil
}

// Leave removes a participant; unknown connections are a no-op. A leaving
// broadcaster takes the whole session down.
func (r *Registry) Leave(ctx context.Context, sessionID, connID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil // session already gone, nothing to leave
	}

	s.mu.Lock()
	m, ok := s.members[connID]
	if !ok || s.ended {
		s.mu.Unlock()
		return nil
	}
	if m.p.Role == domain.RoleBroadcaster {
		s.mu.Unlock()
		return r.End(ctx, sessionID, domain.ReasonBroadcasterDisconnected)
	}
	delete(s.members, connID)
	s.broadcast(Event{
		Type: EventParticipantLeft,
		Payload: ParticipantEventPayload{
			SessionID: sessionID,
			UserID:    m.p.UserID,
			Role:      m.p.Role,
			Language:  m.p.Language,
			Count:     len(s.members),
		},
	})
	s.mu.Unlock()
	return nil
}

// AppendUtterance accepts the next original-language utterance from the
// broadcaster connection and fans it out. Sequence numbers start at 1 and
// are strictly increasing; a failed append consumes no number.
func (r *Registry) AppendUtterance(ctx context.Context, sessionID, connID, text string, uctx *domain.UtteranceContext) (domain.Utterance, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return domain.Utterance{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxUtteranceLen {
		return domain.Utterance{}, fmt.Errorf("%w: utterance text empty or too long", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return domain.Utterance{}, domain.ErrSessionNotFound
	}
	m, ok := s.members[connID]
	if !ok || m.p.Role != domain.RoleBroadcaster {
		return domain.Utterance{}, fmt.Errorf("%w: only the broadcaster may append utterances", domain.ErrUnauthorized)
	}
	if len(s.log) >= maxLogEntries {
		return domain.Utterance{}, fmt.Errorf("%w: session log is full", domain.ErrAppendFailed)
	}

	u := domain.Utterance{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       s.nextSeq + 1,
		Text:      text,
		Context:   uctx,
		CreatedAt: time.Now(),
	}
	s.nextSeq++
	s.byUttID[u.ID] = len(s.log)
	s.log = append(s.log, u)
	s.lastActivity = u.CreatedAt

	s.fanoutUpdate(u)

	if r.onUtterance != nil {
		// hook outside the lock so a slow fallback path cannot stall writes
		go r.onUtterance(sessionID, u)
	}

	return u, nil
}

// TranslationSubmission is one incoming translation, human or machine.
type TranslationSubmission struct {
	UtteranceID string
	Language    domain.Language
	Text        string
	Confidence  float64
	Source      domain.TranslationSource
	SubmittedBy int64
}

// SubmitTranslation stores a translation under (utteranceID, language) and
// fans it out. Last write wins, with one precedence rule on top: a machine
// result never replaces a human one.
func (r *Registry) SubmitTranslation(ctx context.Context, sessionID string, sub TranslationSubmission) (domain.Translation, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return domain.Translation{}, err
	}

	sub.Text = strings.TrimSpace(sub.Text)
	if sub.Text == "" || sub.Language == "" || sub.Confidence < 0 || sub.Confidence > 1 {
		return domain.Translation{}, fmt.Errorf("%w: translation text, language and confidence in [0,1] are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return domain.Translation{}, domain.ErrSessionNotFound
	}
	idx, ok := s.byUttID[sub.UtteranceID]
	if !ok {
		return domain.Translation{}, fmt.Errorf("%w: %s", domain.ErrUtteranceNotFound, sub.UtteranceID)
	}

	trs, ok := s.translations[sub.UtteranceID]
	if !ok {
		trs = make(map[domain.Language]domain.Translation)
		s.translations[sub.UtteranceID] = trs
	}
	if prev, ok := trs[sub.Language]; ok &&
		prev.Source == domain.SourceHuman && sub.Source == domain.SourceMachine {
		return prev, nil // human translation stands
	}

	t := domain.Translation{
		UtteranceID: sub.UtteranceID,
		Language:    sub.Language,
		Text:        sub.Text,
		Confidence:  sub.Confidence,
		Source:      sub.Source,
		SubmittedBy: sub.SubmittedBy,
		SubmittedAt: time.Now(),
	}
	trs[sub.Language] = t
	if !s.hasLanguage(sub.Language) {
		s.info.Languages = append(s.info.Languages, sub.Language)
	}
	s.lastActivity = t.SubmittedAt

	s.fanoutUpdate(s.log[idx])

	return t, nil
}

// HasTranslation reports whether (utteranceID, language) already holds a
// translation. Used by the fallback scheduler before calling a provider.
func (r *Registry) HasTranslation(sessionID, utteranceID string, lang domain.Language) bool {
	s, err := r.lookup(sessionID)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.translations[utteranceID][lang]
	return ok
}

// Recent returns up to limit formatted entries, newest last. When lang is
// set the entries carry that language as primary; reads are snapshot
// consistent with concurrent writes.
func (r *Registry) Recent(sessionID string, lang domain.Language, limit int) ([]Update, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if len(s.log) > limit {
		start = len(s.log) - limit
	}
	pref := domain.Preference{PrimaryLanguage: lang}
	out := make([]Update, 0, len(s.log)-start)
	for _, u := range s.log[start:] {
		out = append(out, buildUpdate(s.info, u, s.translationsFor(u.ID), pref))
	}
	return out, nil
}

// Snapshot returns the state payload sent to a connection on attach.
func (r *Registry) Snapshot(sessionID string) (StatePayload, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return StatePayload{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateSnapshot(), nil
}

// End tears the session down: every participant gets session_ended, the
// summary goes to the history store, and all per-session state is purged.
// No mutation is accepted once End returns.
func (r *Registry) End(ctx context.Context, sessionID string, reason domain.EndReason) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(r.sessions, sessionID)
	delete(r.byMosque, s.info.MosqueID)
	r.mu.Unlock()

	s.mu.Lock()
	now := time.Now()
	s.ended = true
	s.info.State = domain.SessionEnded
	s.info.EndedAt = &now
	s.broadcast(Event{
		Type:    EventSessionEnded,
		Payload: SessionEndedPayload{SessionID: sessionID, Reason: reason},
	})
	s.disp.close()
	sum := domain.SessionSummary{
		SessionID:        sessionID,
		MosqueID:         s.info.MosqueID,
		StartedAt:        s.info.StartedAt,
		EndedAt:          now,
		TranslationCount: s.translationCount(),
		Languages:        append([]domain.Language(nil), s.info.Languages...),
	}
	s.members = make(map[string]*member)
	s.mu.Unlock()

	s.disp.wait()

	if err := r.history.RecordSummary(ctx, sum); err != nil {
		slog.Warn("history summary write failed", "session", sessionID, "err", err)
	}
	slog.Info("session ended",
		"session", sessionID, "reason", reason,
		"duration", now.Sub(sum.StartedAt).Round(time.Second),
		"translations", sum.TranslationCount)

	return nil
}

// RefreshPreference pushes an updated preference into every live session
// where the user is currently listening.
func (r *Registry) RefreshPreference(pref domain.Preference) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		s.mu.Lock()
		for _, m := range s.members {
			if m.p.Role == domain.RoleListener && m.p.UserID == pref.UserID {
				m.pref = pref
			}
		}
		s.mu.Unlock()
	}
}

// Run sweeps idle sessions until ctx is done. Sessions with no activity
// for the idle timeout end with reason idle.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweepIdle(ctx, now)
		}
	}
}

func (r *Registry) sweepIdle(ctx context.Context, now time.Time) {
	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		s.mu.RLock()
		if now.Sub(s.lastActivity) > r.idleTimeout {
			expired = append(expired, id)
		}
		s.mu.RUnlock()
	}
	r.mu.RUnlock()

	for _, id := range expired {
		if err := r.End(ctx, id, domain.ReasonIdle); err != nil {
			slog.Debug("idle sweep end failed", "session", id, "err", err)
		}
	}
}

// Shutdown ends every remaining session, used on process stop.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, s := range r.ListActive("") {
		_ = r.End(ctx, s.ID, domain.ReasonEnded)
	}
}

func (r *Registry) lookup(sessionID string) (*liveSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) resolvePreference(ctx context.Context, s *liveSession, userID int64) domain.Preference {
	if r.prefs != nil {
		if pref, err := r.prefs.Preference(ctx, userID); err == nil && pref.PrimaryLanguage != "" {
			return pref
		}
	}
	s.mu.RLock()
	primary := s.info.SourceLanguage
	if len(s.info.Languages) > 0 {
		primary = s.info.Languages[0]
	}
	s.mu.RUnlock()
	return domain.DefaultPreference(userID, primary)
}
