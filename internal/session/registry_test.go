package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minbar-live/translation-service/internal/domain"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	fail   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("conn gone")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) ofType(t string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) updates() []Update {
	var out []Update
	for _, ev := range c.ofType(EventTranslationUpdate) {
		out = append(out, ev.Payload.(Update))
	}
	return out
}

type stubPrefs struct {
	prefs map[int64]domain.Preference
}

func (s stubPrefs) Preference(_ context.Context, userID int64) (domain.Preference, error) {
	p, ok := s.prefs[userID]
	if !ok {
		return domain.Preference{}, errors.New("preference not found")
	}
	return p, nil
}

type stubHistory struct {
	mu   sync.Mutex
	sums []domain.SessionSummary
}

func (h *stubHistory) RecordSummary(_ context.Context, sum domain.SessionSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sums = append(h.sums, sum)
	return nil
}

func (h *stubHistory) last() (domain.SessionSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sums) == 0 {
		return domain.SessionSummary{}, false
	}
	return h.sums[len(h.sums)-1], true
}

func newTestRegistry(prefs map[int64]domain.Preference) (*Registry, *stubHistory) {
	history := &stubHistory{}
	reg := NewRegistry(stubPrefs{prefs: prefs}, history)
	return reg, history
}

func startBroadcast(t *testing.T, reg *Registry) (domain.Session, *fakeConn) {
	t.Helper()
	s, err := reg.Create(context.Background(), "m1", "", "ar", []domain.Language{"de", "fr"})
	require.NoError(t, err)

	bc := newFakeConn("bc-1")
	_, err = reg.Join(context.Background(), s.ID, bc, 100, domain.RoleBroadcaster, "")
	require.NoError(t, err)
	return s, bc
}

func waitForUpdates(t *testing.T, c *fakeConn, n int) []Update {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.updates()) >= n
	}, time.Second, 5*time.Millisecond)
	return c.updates()
}

func TestCreateDuplicateBroadcast(t *testing.T) {
	reg, _ := newTestRegistry(nil)

	_, err := reg.Create(context.Background(), "m1", "", "ar", nil)
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), "m1", "", "ar", nil)
	require.ErrorIs(t, err, domain.ErrDuplicateBroadcast)

	// a different mosque is unaffected
	_, err = reg.Create(context.Background(), "m2", "", "ar", nil)
	require.NoError(t, err)
}

func TestCreateSameBroadcasterConnReturnsExisting(t *testing.T) {
	reg, _ := newTestRegistry(nil)

	s1, err := reg.Create(context.Background(), "m1", "bc-1", "ar", nil)
	require.NoError(t, err)

	s2, err := reg.Create(context.Background(), "m1", "bc-1", "ar", nil)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)

	_, err = reg.Create(context.Background(), "m1", "bc-2", "ar", nil)
	require.ErrorIs(t, err, domain.ErrDuplicateBroadcast)
}

func TestBroadcasterJoinEmitsSessionStarted(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, err := reg.Create(context.Background(), "m1", "", "ar", []domain.Language{"de"})
	require.NoError(t, err)

	early := newFakeConn("l-1")
	_, err = reg.Join(context.Background(), s.ID, early, 200, domain.RoleListener, "")
	require.NoError(t, err)

	bc := newFakeConn("bc-1")
	_, err = reg.Join(context.Background(), s.ID, bc, 100, domain.RoleBroadcaster, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(early.ofType(EventSessionStarted)) == 1
	}, time.Second, 5*time.Millisecond)
	started := early.ofType(EventSessionStarted)[0].Payload.(SessionStartedPayload)
	assert.Equal(t, s.ID, started.SessionID)
	assert.Equal(t, domain.Language("ar"), started.SourceLanguage)
}

func TestCreateValidation(t *testing.T) {
	reg, _ := newTestRegistry(nil)

	_, err := reg.Create(context.Background(), "", "", "ar", nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = reg.Create(context.Background(), "m1", "", "", nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSequenceNumbersStrictlyIncreasing(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	for i := 1; i <= 5; i++ {
		u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(i), u.Seq)
	}

	// a rejected append consumes no sequence number
	_, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "   ", nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "next", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), u.Seq)
}

func TestAppendRequiresBroadcaster(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, _ := startBroadcast(t, reg)

	listener := newFakeConn("l-1")
	_, err := reg.Join(context.Background(), s.ID, listener, 200, domain.RoleListener, "")
	require.NoError(t, err)

	_, err = reg.AppendUtterance(context.Background(), s.ID, listener.ID(), "nope", nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSecondBroadcasterRejected(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, _ := startBroadcast(t, reg)

	other := newFakeConn("bc-2")
	_, err := reg.Join(context.Background(), s.ID, other, 101, domain.RoleBroadcaster, "")
	require.ErrorIs(t, err, domain.ErrDuplicateBroadcast)
}

func TestLastWriteWins(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "بسم الله", nil)
	require.NoError(t, err)

	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "erste", Confidence: 0.8,
		Source: domain.SourceHuman, SubmittedBy: 1,
	})
	require.NoError(t, err)

	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "zweite", Confidence: 0.9,
		Source: domain.SourceHuman, SubmittedBy: 2,
	})
	require.NoError(t, err)

	entries, err := reg.Recent(s.ID, "de", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Primary)
	assert.Equal(t, "zweite", entries[0].Primary.Text)
}

func TestMachineNeverOverwritesHuman(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
	require.NoError(t, err)

	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "vom Menschen", Confidence: 0.9,
		Source: domain.SourceHuman, SubmittedBy: 1,
	})
	require.NoError(t, err)

	got, err := reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "von der Maschine", Confidence: 0.5,
		Source: domain.SourceMachine,
	})
	require.NoError(t, err)
	assert.Equal(t, "vom Menschen", got.Text)
	assert.Equal(t, domain.SourceHuman, got.Source)

	// the reverse direction does overwrite
	got, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "fr", Text: "machine", Confidence: 0.5,
		Source: domain.SourceMachine,
	})
	require.NoError(t, err)
	got, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "fr", Text: "humain", Confidence: 0.9,
		Source: domain.SourceHuman, SubmittedBy: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "humain", got.Text)
}

func TestSubmitUnknownUtterance(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, _ := startBroadcast(t, reg)

	_, err := reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: "no-such", Language: "de", Text: "x", Confidence: 0.5,
		Source: domain.SourceHuman,
	})
	require.ErrorIs(t, err, domain.ErrUtteranceNotFound)
}

func TestSubmitValidation(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)
	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
	require.NoError(t, err)

	cases := []TranslationSubmission{
		{UtteranceID: u.ID, Language: "de", Text: "  ", Confidence: 0.5, Source: domain.SourceHuman},
		{UtteranceID: u.ID, Language: "", Text: "x", Confidence: 0.5, Source: domain.SourceHuman},
		{UtteranceID: u.ID, Language: "de", Text: "x", Confidence: 1.5, Source: domain.SourceHuman},
		{UtteranceID: u.ID, Language: "de", Text: "x", Confidence: -0.1, Source: domain.SourceHuman},
	}
	for _, sub := range cases {
		_, err := reg.SubmitTranslation(context.Background(), s.ID, sub)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

// German listener, dual subtitles off: gets the translation as primary and
// never a secondary field.
func TestListenerPayloadSingleLanguage(t *testing.T) {
	reg, _ := newTestRegistry(map[int64]domain.Preference{
		200: {UserID: 200, PrimaryLanguage: "de", ShowDualSubtitles: false},
	})
	s, bc := startBroadcast(t, reg)

	listener := newFakeConn("l-1")
	_, err := reg.Join(context.Background(), s.ID, listener, 200, domain.RoleListener, "")
	require.NoError(t, err)

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "بسم الله", nil)
	require.NoError(t, err)

	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "Im Namen Allahs", Confidence: 0.92,
		Source: domain.SourceHuman, SubmittedBy: 1,
	})
	require.NoError(t, err)

	upds := waitForUpdates(t, listener, 2)

	// first delivery: utterance before any translation
	assert.Equal(t, int64(1), upds[0].Seq)
	assert.Equal(t, "بسم الله", upds[0].Original)
	assert.True(t, upds[0].Awaiting)
	assert.Nil(t, upds[0].Primary)

	// second delivery: the German translation
	last := upds[len(upds)-1]
	assert.Equal(t, int64(1), last.Seq)
	require.NotNil(t, last.Primary)
	assert.Equal(t, domain.Language("de"), last.Primary.Language)
	assert.Equal(t, "Im Namen Allahs", last.Primary.Text)
	assert.InDelta(t, 0.92, last.Primary.Confidence, 1e-9)

	for _, upd := range upds {
		assert.Nil(t, upd.Secondary, "dual subtitles off must never carry a secondary")
	}
}

// Late-joining listener with French primary and German secondary: backfill
// carries the German secondary while primary is still awaiting.
func TestLateJoinBackfillDualSubtitles(t *testing.T) {
	reg, _ := newTestRegistry(map[int64]domain.Preference{
		300: {UserID: 300, PrimaryLanguage: "fr", SecondaryLanguage: "de", ShowDualSubtitles: true},
	})
	s, bc := startBroadcast(t, reg)

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "بسم الله", nil)
	require.NoError(t, err)
	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "Im Namen Allahs", Confidence: 0.92,
		Source: domain.SourceHuman, SubmittedBy: 1,
	})
	require.NoError(t, err)

	late := newFakeConn("l-2")
	_, err = reg.Join(context.Background(), s.ID, late, 300, domain.RoleListener, "")
	require.NoError(t, err)

	upds := waitForUpdates(t, late, 1)
	entry := upds[0]
	assert.True(t, entry.Awaiting)
	assert.Nil(t, entry.Primary)
	require.NotNil(t, entry.Secondary)
	assert.Equal(t, domain.Language("de"), entry.Secondary.Language)
	assert.Equal(t, []domain.Language{"de"}, entry.Available)
}

func TestEndSessionNotifiesAndPurges(t *testing.T) {
	reg, history := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	listeners := make([]*fakeConn, 3)
	for i := range listeners {
		listeners[i] = newFakeConn("l-" + string(rune('a'+i)))
		_, err := reg.Join(context.Background(), s.ID, listeners[i], int64(200+i), domain.RoleListener, "")
		require.NoError(t, err)
	}

	u, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
	require.NoError(t, err)
	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "de", Text: "Text", Confidence: 0.7,
		Source: domain.SourceHuman, SubmittedBy: 1,
	})
	require.NoError(t, err)

	require.NoError(t, reg.End(context.Background(), s.ID, domain.ReasonEnded))

	// End waits for the dispatch queue to drain, so no Eventually needed.
	for _, l := range listeners {
		ended := l.ofType(EventSessionEnded)
		require.Len(t, ended, 1)
		assert.Equal(t, domain.ReasonEnded, ended[0].Payload.(SessionEndedPayload).Reason)
	}

	// no further mutations or reads
	_, err = reg.SubmitTranslation(context.Background(), s.ID, TranslationSubmission{
		UtteranceID: u.ID, Language: "fr", Text: "x", Confidence: 0.5, Source: domain.SourceHuman,
	})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = reg.Recent(s.ID, "", 10)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.ErrorIs(t, reg.End(context.Background(), s.ID, domain.ReasonEnded), domain.ErrSessionNotFound)

	// summary reached the history store
	sum, ok := history.last()
	require.True(t, ok)
	assert.Equal(t, s.ID, sum.SessionID)
	assert.Equal(t, "m1", sum.MosqueID)
	assert.Equal(t, int64(1), sum.TranslationCount)

	// the mosque can broadcast again
	_, err = reg.Create(context.Background(), "m1", "", "ar", nil)
	require.NoError(t, err)
}

func TestBroadcasterDisconnectEndsSession(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	listener := newFakeConn("l-1")
	_, err := reg.Join(context.Background(), s.ID, listener, 200, domain.RoleListener, "")
	require.NoError(t, err)

	require.NoError(t, reg.Leave(context.Background(), s.ID, bc.ID()))

	ended := listener.ofType(EventSessionEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, domain.ReasonBroadcasterDisconnected, ended[0].Payload.(SessionEndedPayload).Reason)

	_, err = reg.Recent(s.ID, "", 10)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestListenerLeaveKeepsSessionAlive(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	listener := newFakeConn("l-1")
	_, err := reg.Join(context.Background(), s.ID, listener, 200, domain.RoleListener, "")
	require.NoError(t, err)

	require.NoError(t, reg.Leave(context.Background(), s.ID, listener.ID()))
	// leaving twice is a no-op
	require.NoError(t, reg.Leave(context.Background(), s.ID, listener.ID()))

	_, err = reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "still live", nil)
	require.NoError(t, err)
}

func TestTranslatorJoinGrowsLanguages(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, _ := startBroadcast(t, reg)

	tr := newFakeConn("t-1")
	_, err := reg.Join(context.Background(), s.ID, tr, 400, domain.RoleTranslator, "tr")
	require.NoError(t, err)

	info, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Contains(t, info.Languages, domain.Language("tr"))

	// translator without a language is rejected
	_, err = reg.Join(context.Background(), s.ID, newFakeConn("t-2"), 401, domain.RoleTranslator, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	// two translators for the same language are allowed
	_, err = reg.Join(context.Background(), s.ID, newFakeConn("t-3"), 402, domain.RoleTranslator, "tr")
	require.NoError(t, err)
}

func TestRecentLimitClamped(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	for i := 0; i < 120; i++ {
		_, err := reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
		require.NoError(t, err)
	}

	entries, err := reg.Recent(s.ID, "", 1000)
	require.NoError(t, err)
	assert.Len(t, entries, maxRecentLimit)
	// newest last
	assert.Equal(t, int64(120), entries[len(entries)-1].Seq)

	entries, err = reg.Recent(s.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, defaultRecentLimit)
}

func TestIdleSweep(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	reg.SetIdleTimeout(time.Millisecond)
	s, _ := startBroadcast(t, reg)

	time.Sleep(5 * time.Millisecond)
	reg.sweepIdle(context.Background(), time.Now())

	_, err := reg.Get(s.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestListActiveFiltersByMosque(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	_, err := reg.Create(context.Background(), "m1", "", "ar", nil)
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), "m2", "", "ar", nil)
	require.NoError(t, err)

	assert.Len(t, reg.ListActive(""), 2)
	assert.Len(t, reg.ListActive("m1"), 1)
	assert.Empty(t, reg.ListActive("m3"))
}

func TestUnreachableListenerDropsSilently(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	s, bc := startBroadcast(t, reg)

	dead := newFakeConn("l-dead")
	dead.fail = true
	_, err := reg.Join(context.Background(), s.ID, dead, 200, domain.RoleListener, "")
	require.NoError(t, err)

	// append must succeed despite the failing connection
	_, err = reg.AppendUtterance(context.Background(), s.ID, bc.ID(), "text", nil)
	require.NoError(t, err)
	require.NoError(t, reg.End(context.Background(), s.ID, domain.ReasonEnded))
}
