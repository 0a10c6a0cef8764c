package ws

import "github.com/minbar-live/translation-service/internal/domain"

// Inbound message types. Outbound event types live in the session package;
// both sides share the {type, payload} envelope.
const (
	TypeUtterance      = "utterance"       // broadcaster: next speech segment
	TypeTranslation    = "translation"     // translator: text for one utterance
	TypeUtteranceAck   = "utterance_ack"   // ack to the broadcaster (NOT fanout)
	TypeTranslationAck = "translation_ack" // ack to the translator
	TypeError          = "error"           // rejected inbound message
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type UtterancePayload struct {
	Text    string                   `json:"text"`
	Context *domain.UtteranceContext `json:"context,omitempty"`
}

type TranslationPayload struct {
	UtteranceID string  `json:"utterance_id"`
	Language    string  `json:"language,omitempty"` // defaults to the translator's join language
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

type UtteranceAckPayload struct {
	UtteranceID string `json:"utterance_id"`
	Seq         int64  `json:"seq"`
}

type TranslationAckPayload struct {
	UtteranceID string `json:"utterance_id"`
	Language    string `json:"language"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
