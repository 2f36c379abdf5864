package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventInvoicePaymentMade EventType = "invoice.payment_made"
	EventPayment            EventType = "payment"
	EventPaymentCreated     EventType = "payment.created"
	EventPaymentUpdated     EventType = "payment.updated"
	EventInvoiceCreated     EventType = "invoice.created"
	EventInvoiceUpdated     EventType = "invoice.updated"
	EventInvoicePublished   EventType = "invoice.published"
	EventRefundCreated      EventType = "refund.created"
	EventRefundUpdated      EventType = "refund.updated"
)

// Event - закрытое множество событий. Каждое событие несет свой типизированный объект
type Event interface {
	Kind() EventType
	event()
}

type InvoicePaymentMade struct {
	Invoice Invoice
}

// PaymentCreated - события payment и payment.created
type PaymentCreated struct {
	Payment Payment
}

type PaymentUpdated struct {
	Payment Payment
}

// InvoiceChanged - invoice.created, invoice.updated, invoice.published
type InvoiceChanged struct {
	Type    EventType
	Invoice Invoice
}

type RefundCreated struct {
	Refund Refund
}

type RefundUpdated struct {
	Refund Refund
}

// Unhandled - событие, на которое не требуется реакция
type Unhandled struct {
	Type string
}

func (InvoicePaymentMade) Kind() EventType { return EventInvoicePaymentMade }
func (PaymentCreated) Kind() EventType     { return EventPaymentCreated }
func (PaymentUpdated) Kind() EventType     { return EventPaymentUpdated }
func (e InvoiceChanged) Kind() EventType   { return e.Type }
func (RefundCreated) Kind() EventType      { return EventRefundCreated }
func (RefundUpdated) Kind() EventType      { return EventRefundUpdated }
func (e Unhandled) Kind() EventType        { return EventType(e.Type) }

func (InvoicePaymentMade) event() {}
func (PaymentCreated) event()     {}
func (PaymentUpdated) event()     {}
func (InvoiceChanged) event()     {}
func (RefundCreated) event()      {}
func (RefundUpdated) event()      {}
func (Unhandled) event()          {}

// Объекты провайдера (data.object.<name>)

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	SourceType  string `json:"source_type"`
	AmountMoney Money  `json:"amount_money"`
	TotalMoney  *Money `json:"total_money"`
	Note        string `json:"note"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Total - итоговая сумма платежа, если провайдер ее передал, иначе amount_money
func (p Payment) Total() Money {
	if p.TotalMoney != nil {
		return *p.TotalMoney
	}
	return p.AmountMoney
}

// Timestamp: updated_at, затем created_at, затем now
func (p Payment) Timestamp(now time.Time) time.Time {
	for _, value := range []string{p.UpdatedAt, p.CreatedAt} {
		if value == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return ts
		}
	}
	return now
}

type Invoice struct {
	ID              string           `json:"id"`
	InvoiceNumber   string           `json:"invoice_number"`
	OrderID         string           `json:"order_id"`
	Status          string           `json:"status"`
	PaymentRequests []PaymentRequest `json:"payment_requests"`
}

type PaymentRequest struct {
	UID                       string `json:"uid"`
	RequestType               string `json:"request_type"`
	ComputedAmountMoney       *Money `json:"computed_amount_money"`
	TotalCompletedAmountMoney *Money `json:"total_completed_amount_money"`
}

// PrimaryRequest - первый запрос оплаты счета
func (i Invoice) PrimaryRequest() (PaymentRequest, bool) {
	if len(i.PaymentRequests) == 0 {
		return PaymentRequest{}, false
	}
	return i.PaymentRequests[0], true
}

type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	AmountMoney Money  `json:"amount_money"`
}

// ParseEvent строит типизированное событие по типу конверта.
// Отсутствие ожидаемого объекта - ErrMalformedPayload
func ParseEvent(envelope Envelope) (Event, error) {
	switch EventType(envelope.Type) {
	case EventInvoicePaymentMade:
		invoice, err := decodeObject[Invoice](envelope.RawObject, "invoice")
		return InvoicePaymentMade{Invoice: invoice}, err
	case EventPayment, EventPaymentCreated:
		payment, err := decodeObject[Payment](envelope.RawObject, "payment")
		return PaymentCreated{Payment: payment}, err
	case EventPaymentUpdated:
		payment, err := decodeObject[Payment](envelope.RawObject, "payment")
		return PaymentUpdated{Payment: payment}, err
	case EventInvoiceCreated, EventInvoiceUpdated, EventInvoicePublished:
		invoice, err := decodeObject[Invoice](envelope.RawObject, "invoice")
		return InvoiceChanged{Type: EventType(envelope.Type), Invoice: invoice}, err
	case EventRefundCreated:
		refund, err := decodeObject[Refund](envelope.RawObject, "refund")
		return RefundCreated{Refund: refund}, err
	case EventRefundUpdated:
		refund, err := decodeObject[Refund](envelope.RawObject, "refund")
		return RefundUpdated{Refund: refund}, err
	default:
		return Unhandled{Type: envelope.Type}, nil
	}
}

func decodeObject[T any](raw json.RawMessage, name string) (T, error) {
	var object T

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return object, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	value, ok := fields[name]
	if !ok || string(value) == "null" {
		return object, fmt.Errorf("%w: no %s object", ErrMalformedPayload, name)
	}
	if err := json.Unmarshal(value, &object); err != nil {
		return object, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
	}
	return object, nil
}
