package domain

import "time"

type TranslationSource string

const (
	SourceHuman   TranslationSource = "human"
	SourceMachine TranslationSource = "machine"
)

// Translation is keyed by (UtteranceID, Language): at most one is visible
// per key, a later submission replaces the earlier one.
type Translation struct {
	UtteranceID string
	Language    Language
	Text        string
	Confidence  float64
	Source      TranslationSource
	SubmittedBy int64 // user id, 0 for machine
	VerifiedBy  int64
	SubmittedAt time.Time
}
