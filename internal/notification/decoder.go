package notification

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Поля формы, в которой ретранслятор пересылает уведомление
const (
	RelayFieldHeaders = "headers"
	RelayFieldBody    = "body"
)

type Decoder struct {
	signatureHeader string
}

// NewDecoder. signatureHeader - имя заголовка с подписью, нужен для формы ретранслятора,
// где заголовки приходят внутри тела запроса
func NewDecoder(signatureHeader string) *Decoder {
	return &Decoder{signatureHeader: signatureHeader}
}

// Decode разбирает либо JSON тело провайдера, либо форму ретранслятора
// с base64 полями headers и body
func (d *Decoder) Decode(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty body", ErrDecode)
	}
	if trimmed[0] == '{' {
		return decodeJSON(raw)
	}
	return d.decodeRelay(trimmed)
}

func (d *Decoder) decodeRelay(raw []byte) (Envelope, error) {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: relay form: %v", ErrDecode, err)
	}
	if !form.Has(RelayFieldBody) {
		return Envelope{}, fmt.Errorf("%w: neither JSON nor relay form", ErrDecode)
	}

	body, err := decodeBase64(form.Get(RelayFieldBody))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: relay body: %v", ErrDecode, err)
	}
	envelope, err := decodeJSON(body)
	if err != nil {
		return Envelope{}, err
	}

	// Заголовки необязательны: без них подпись просто не пройдет проверку
	if form.Has(RelayFieldHeaders) {
		headersRaw, err := decodeBase64(form.Get(RelayFieldHeaders))
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: relay headers: %v", ErrDecode, err)
		}
		headers := make(map[string]any)
		if err := json.Unmarshal(headersRaw, &headers); err != nil {
			return Envelope{}, fmt.Errorf("%w: relay headers: %v", ErrDecode, err)
		}
		envelope.SignatureHeader = headerValue(headers, d.signatureHeader)
	}

	return envelope, nil
}

func decodeJSON(body []byte) (Envelope, error) {
	var raw envelopeJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	envelope := Envelope{
		ID:        strings.TrimSpace(raw.EventID),
		Type:      strings.TrimSpace(raw.Type),
		RawObject: raw.Data.Object,
		RawBody:   body,
	}
	if !envelope.Valid() {
		return Envelope{}, fmt.Errorf("%w: event_id and type are required", ErrDecode)
	}

	object := bytes.TrimSpace(raw.Data.Object)
	if len(object) == 0 || object[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: no object under data.object", ErrDecode)
	}

	if raw.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err == nil {
			envelope.CreatedAt = createdAt
		}
	}

	return envelope, nil
}

func decodeBase64(value string) ([]byte, error) {
	// '+' в неэкранированной форме превращается в пробел
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "+")
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return base64.URLEncoding.DecodeString(value)
	}
	return decoded, nil
}

// headerValue ищет заголовок без учета регистра. Значение может быть строкой или массивом строк
func headerValue(headers map[string]any, name string) string {
	for key, value := range headers {
		if !strings.EqualFold(key, name) {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}
