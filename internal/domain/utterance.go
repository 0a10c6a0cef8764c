package domain

import "time"

// UtteranceContext is optional metadata attached by the speech pipeline,
// e.g. the passage being recited.
type UtteranceContext struct {
	SurahNumber int   `json:"surah_number,omitempty"`
	AyahNumbers []int `json:"ayah_numbers,omitempty"`
}

// Utterance is one unit of original-language speech text. Immutable once
// created; Seq is assigned by the store and never reused.
type Utterance struct {
	ID        string
	SessionID string
	Seq       int64
	Text      string
	Context   *UtteranceContext
	CreatedAt time.Time
}
