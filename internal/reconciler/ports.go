package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/paywebhook/internal/model"
)

// Внешние зависимости сверки. Хранилище заказов и платежей, конфигурация и клиент
// провайдера, конвертер валют, выполнение заказа

type OrderStore interface {
	// OrderGet - store.ErrNoRows, если заказа нет
	OrderGet(ctx context.Context, id string) (model.Order, error)
	OrderLog(ctx context.Context, id string, message string) error
}

type PaymentStore interface {
	// PaymentGetByReference возвращает новый платеж (IsNew), если записи нет
	PaymentGetByReference(ctx context.Context, referenceID string) (model.Payment, error)
	// PaymentSave - store.ErrAlreadyExists при гонке создания
	PaymentSave(ctx context.Context, payment *model.Payment) error
	// PaymentComplete - true только для запроса, который выполнил переход
	PaymentComplete(ctx context.Context, referenceID string, status string, at time.Time) (bool, error)
}

type GatewayConfig interface {
	GetSecretKey() []byte
	GetCompleteStatus() string
	GetDisplayName() string
}

type GatewayClient interface {
	LookupOrder(ctx context.Context, providerOrderID string) (model.ProviderOrder, error)
}

type CurrencyConverter interface {
	FromMinorUnits(code string, amount int64) (decimal.Decimal, error)
	ToMinorUnits(code string, amount decimal.Decimal) (int64, error)
	Equal(code string, a, b decimal.Decimal) (bool, error)
}

type FulfillmentTrigger interface {
	HandlePurchase(ctx context.Context, orderID string) (bool, error)
	HandleFullRefund(ctx context.Context, orderID string) (bool, error)
}
