package domain

import "time"

type Language string

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// EndReason explains why a session left the Active state.
type EndReason string

const (
	ReasonEnded                   EndReason = "ended"
	ReasonBroadcasterDisconnected EndReason = "broadcaster_disconnected"
	ReasonIdle                    EndReason = "idle"
)

type Session struct {
	ID                string
	MosqueID          string
	BroadcasterConnID string
	SourceLanguage    Language
	Languages         []Language
	State             SessionState
	StartedAt         time.Time
	EndedAt           *time.Time
}

// SessionSummary is the durable record handed to the history store on end.
type SessionSummary struct {
	SessionID        string     `db:"session_id"`
	MosqueID         string     `db:"mosque_id"`
	StartedAt        time.Time  `db:"started_at"`
	EndedAt          time.Time  `db:"ended_at"`
	TranslationCount int64      `db:"translation_count"`
	Languages        []Language `db:"languages"`
}
