package notification

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrDecode           = errors.New("notification decode failed")
	ErrMalformedPayload = errors.New("notification payload is malformed")
	ErrUnknownStatus    = errors.New("unknown provider status")
)

// Envelope - одно входящее уведомление. После декодирования не изменяется
type Envelope struct {
	ID              string
	Type            string
	CreatedAt       time.Time
	RawObject       json.RawMessage
	SignatureHeader string
	RawBody         []byte
}

func (e Envelope) Valid() bool {
	return e.ID != "" && e.Type != ""
}

// JSON тело уведомления провайдера
type envelopeJSON struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	CreatedAt  string `json:"created_at"`
	Data       struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
