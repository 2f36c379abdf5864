package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/notification"
	"github.com/iurnickita/paywebhook/internal/store"
)

// Способы оплаты, которые записывает сверка
const (
	MethodInvoice = "INVOICE"
	MethodRefund  = "REFUND"
)

// Reconciler применяет проверенные события к заказам и платежам.
// Обработчик проверяет все условия до первого изменения и безопасен при повторе
type Reconciler interface {
	// Reconcile - true: уведомление принято (в том числе без действий),
	// false: провайдер должен повторить доставку
	Reconcile(ctx context.Context, envelope notification.Envelope, event notification.Event) (bool, error)
}

type Deps struct {
	Orders      OrderStore
	Payments    PaymentStore
	Gateway     GatewayClient
	Config      GatewayConfig
	Currency    CurrencyConverter
	Fulfillment FulfillmentTrigger
	Logger      *zap.Logger
	Now         func() time.Time
}

type reconciler struct {
	orders      OrderStore
	payments    PaymentStore
	gateway     GatewayClient
	config      GatewayConfig
	currency    CurrencyConverter
	fulfillment FulfillmentTrigger
	zaplog      *zap.Logger
	now         func() time.Time
}

func NewReconciler(deps Deps) Reconciler {
	r := reconciler{
		orders:      deps.Orders,
		payments:    deps.Payments,
		gateway:     deps.Gateway,
		config:      deps.Config,
		currency:    deps.Currency,
		fulfillment: deps.Fulfillment,
		zaplog:      deps.Logger,
		now:         deps.Now,
	}
	if r.zaplog == nil {
		r.zaplog = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return &r
}

func (r *reconciler) Reconcile(ctx context.Context, envelope notification.Envelope, event notification.Event) (bool, error) {
	zaplog := r.zaplog.With(
		zap.String("event_id", envelope.ID),
		zap.String("event_type", envelope.Type))

	switch e := event.(type) {
	case notification.InvoicePaymentMade:
		return r.invoicePaymentMade(ctx, zaplog, e.Invoice)
	case notification.PaymentCreated:
		return r.paymentCreated(ctx, zaplog, e.Payment)
	case notification.PaymentUpdated:
		return r.paymentUpdated(ctx, zaplog, e.Payment)
	case notification.InvoiceChanged:
		return r.invoiceChanged(ctx, zaplog, e.Invoice)
	case notification.RefundCreated:
		return r.refundCreated(ctx, zaplog, e.Refund)
	case notification.RefundUpdated:
		return r.refundUpdated(ctx, zaplog, e.Refund)
	case notification.Unhandled:
		// Событие не требует действий, но доставку нужно подтвердить
		zaplog.Debug("unhandled event type")
		return true, nil
	default:
		return false, fmt.Errorf("unsupported event %T", event)
	}
}

// order - заказ и признак его наличия. Ошибка только при сбое хранилища
func (r *reconciler) order(ctx context.Context, id string) (model.Order, bool, error) {
	order, err := r.orders.OrderGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.Order{}, false, nil
		}
		return model.Order{}, false, fmt.Errorf("order %s: %w", id, err)
	}
	return order, true, nil
}

// createPayment записывает новый платеж. false - платеж с тем же reference id
// успел создать параллельный запрос
func (r *reconciler) createPayment(ctx context.Context, payment *model.Payment) (bool, error) {
	err := r.payments.PaymentSave(ctx, payment)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("save payment %s: %w", payment.ReferenceID, err)
	}
	return true, nil
}

func (r *reconciler) purchase(ctx context.Context, zaplog *zap.Logger, orderID string) error {
	ok, err := r.fulfillment.HandlePurchase(ctx, orderID)
	if err != nil {
		return fmt.Errorf("fulfil order %s: %w", orderID, err)
	}
	if !ok {
		zaplog.Warn("purchase fulfillment declined", zap.String("order", orderID))
	}
	return nil
}

// logOrder пишет решение сверки в журнал заказа. Сбой журнала не прерывает обработку
func (r *reconciler) logOrder(ctx context.Context, zaplog *zap.Logger, orderID string, message string) {
	zaplog.Info(message, zap.String("order", orderID))
	err := r.orders.OrderLog(ctx, orderID, r.config.GetDisplayName()+": "+message)
	if err != nil {
		zaplog.Warn("order log write failed", zap.String("order", orderID), zap.Error(err))
	}
}

// mismatch - данные уведомления не сходятся с записанным платежом. Исправлять
// автоматически небезопасно: фиксируем и подтверждаем доставку
func (r *reconciler) mismatch(ctx context.Context, zaplog *zap.Logger, orderID string, message string, fields ...zap.Field) {
	zaplog.Warn("reconciliation mismatch: "+message, append(fields, zap.String("order", orderID))...)
	if orderID == "" {
		return
	}
	err := r.orders.OrderLog(ctx, orderID, r.config.GetDisplayName()+": "+message)
	if err != nil {
		zaplog.Warn("order log write failed", zap.String("order", orderID), zap.Error(err))
	}
}

func (r *reconciler) unknownStatus(zaplog *zap.Logger, err error) (bool, error) {
	zaplog.Error("unrecognized provider status", zap.Error(err))
	return false, err
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", notification.ErrMalformedPayload, err)
}
