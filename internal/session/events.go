package session

import (
	"github.com/minbar-live/translation-service/internal/domain"
)

// Event types pushed to participant connections.
const (
	EventState             = "state"               // snapshot on attach
	EventSessionStarted    = "session_started"     // broadcast began
	EventParticipantJoined = "participant_joined"  // someone joined
	EventParticipantLeft   = "participant_left"    // someone left
	EventTranslationUpdate = "translation_update"  // per-listener payload
	EventSessionEnded      = "session_ended"       // session is gone
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Conn is the outbound side of one participant connection. Send must be
// safe for concurrent use; a failed Send is dropped, the listener's next
// backfill is the recovery path.
type Conn interface {
	ID() string
	Send(ev Event) error
}

type StatePayload struct {
	SessionID      string                 `json:"session_id"`
	MosqueID       string                 `json:"mosque_id"`
	SourceLanguage domain.Language        `json:"source_language"`
	Languages      []domain.Language      `json:"languages"`
	Participants   []ParticipantStateItem `json:"participants"`
}

type ParticipantStateItem struct {
	UserID   int64           `json:"user_id"`
	Role     domain.Role     `json:"role"`
	Language domain.Language `json:"language,omitempty"`
	JoinedAt int64           `json:"joined_at_unix"`
}

type ParticipantEventPayload struct {
	SessionID string          `json:"session_id"`
	UserID    int64           `json:"user_id"`
	Role      domain.Role     `json:"role"`
	Language  domain.Language `json:"language,omitempty"`
	Count     int             `json:"participant_count"`
}

type SessionStartedPayload struct {
	SessionID      string            `json:"session_id"`
	MosqueID       string            `json:"mosque_id"`
	SourceLanguage domain.Language   `json:"source_language"`
	Languages      []domain.Language `json:"languages"`
}

type SessionEndedPayload struct {
	SessionID string           `json:"session_id"`
	Reason    domain.EndReason `json:"reason"`
}

// Subtitle is one rendered translation line.
type Subtitle struct {
	Language   domain.Language          `json:"language"`
	Text       string                   `json:"text"`
	Confidence float64                  `json:"confidence"`
	Source     domain.TranslationSource `json:"source"`
}

// Update is the translation_update payload, formatted per listener.
// Secondary is present only when the listener has dual subtitles on and a
// secondary-language translation exists. Clients merge updates by
// UtteranceID: an update for an old utterance may arrive after newer ones.
type Update struct {
	SessionID   string                   `json:"session_id"`
	UtteranceID string                   `json:"utterance_id"`
	Seq         int64                    `json:"seq"`
	Original    string                   `json:"original"`
	Context     *domain.UtteranceContext `json:"context,omitempty"`
	Awaiting    bool                     `json:"awaiting_translation"`
	Primary     *Subtitle                `json:"primary,omitempty"`
	Secondary   *Subtitle                `json:"secondary,omitempty"`
	Available   []domain.Language        `json:"available_languages"`
	TSUnix      int64                    `json:"ts_unix"`
}
