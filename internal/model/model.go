package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Заказы

type OrderState string

const (
	OrderStateNew        OrderState = "new"
	OrderStateInProgress OrderState = "in_progress"
	OrderStatePaid       OrderState = "paid"
	OrderStateRefunded   OrderState = "refunded"
)

type Order struct {
	ID          string
	State       OrderState
	Currency    string
	Items       []OrderItem
	MiscCharges decimal.Decimal
	// Остаток к оплате: позиции + доп. сборы - завершенные платежи. Вычисляется при чтении
	BalanceDue decimal.Decimal
	CreatedAt  time.Time
}

type OrderItem struct {
	SKU      string
	Quantity int
	Price    decimal.Decimal
}

// Платежи

type Payment struct {
	ID          string
	ReferenceID string
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	IsComplete  bool
	Status      string
	Method      string
	Comment     string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Новый (не сохраненный) платеж с идентификатором провайдера
func NewPayment(referenceID string) Payment {
	return Payment{ReferenceID: referenceID}
}

// Платеж еще не записан в хранилище
func (p Payment) IsNew() bool {
	return p.ID == ""
}

// Отметка о завершении. Снять отметку нельзя
func (p *Payment) MarkComplete(at time.Time) {
	if p.IsComplete {
		return
	}
	p.IsComplete = true
	p.CompletedAt = at
}

// Заказ на стороне провайдера

type ProviderOrder struct {
	ID          string
	ReferenceID string
	State       string
}

// Журнал уведомлений

type NotificationState string

const (
	NotificationStateProcessing NotificationState = "processing"
	NotificationStateProcessed  NotificationState = "processed"
)

type Notification struct {
	EventID    string
	EventType  string
	State      NotificationState
	ReceivedAt time.Time
	// ExpiresAt - срок резерва processing. После него доставку может забрать
	// повторная попытка. Нулевое значение - без срока
	ExpiresAt time.Time
}

// Журнал заказа

type OrderLogEntry struct {
	OrderID   string
	Message   string
	CreatedAt time.Time
}
