package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/notification"
	"github.com/iurnickita/paywebhook/internal/service/gatewayclient"
)

// paymentCreated - события payment и payment.created.
// Заказ находится через провайдера: id заказа провайдера -> reference_id -> наш заказ
func (r *reconciler) paymentCreated(ctx context.Context, zaplog *zap.Logger, p notification.Payment) (bool, error) {
	if p.ID == "" {
		return false, malformed(errors.New("payment without id"))
	}
	zaplog = zaplog.With(zap.String("reference", p.ID))

	if p.AmountMoney.Amount <= 0 {
		zaplog.Info("payment without amount ignored")
		return true, nil
	}
	status, err := notification.ParsePaymentStatus(p.Status)
	if err != nil {
		return r.unknownStatus(zaplog, err)
	}
	if status != notification.PaymentStatusApproved && status != notification.PaymentStatusCompleted {
		zaplog.Info("payment status requires no action", zap.String("status", status.String()))
		return true, nil
	}
	if p.OrderID == "" {
		zaplog.Warn("payment without provider order")
		return true, nil
	}

	providerOrder, err := r.gateway.LookupOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, gatewayclient.ErrOrderNotFound) {
			zaplog.Warn("provider order not found", zap.String("provider_order", p.OrderID))
			return true, nil
		}
		return false, fmt.Errorf("lookup provider order %s: %w", p.OrderID, err)
	}
	orderID := strings.TrimSpace(providerOrder.ReferenceID)
	if orderID == "" {
		zaplog.Warn("provider order without reference id", zap.String("provider_order", p.OrderID))
		return true, nil
	}

	_, found, err := r.order(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !found {
		zaplog.Info("order not found", zap.String("order", orderID))
		return true, nil
	}

	payment, err := r.payments.PaymentGetByReference(ctx, p.ID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	if !payment.IsNew() {
		zaplog.Info("payment already recorded",
			zap.String("order", payment.OrderID),
			zap.Bool("complete", payment.IsComplete))
		return true, nil
	}

	amount, err := r.currency.FromMinorUnits(p.AmountMoney.Currency, p.AmountMoney.Amount)
	if err != nil {
		return false, malformed(err)
	}
	payment.OrderID = orderID
	payment.Amount = amount
	payment.Currency = strings.ToUpper(p.AmountMoney.Currency)
	payment.Status = status.String()
	payment.Method = p.SourceType
	payment.Comment = strings.TrimSpace(r.config.GetDisplayName() + " " + p.Note)
	if strings.EqualFold(status.String(), r.config.GetCompleteStatus()) {
		payment.MarkComplete(p.Timestamp(r.now()))
	}

	created, err := r.createPayment(ctx, &payment)
	if err != nil {
		return false, err
	}
	if !created {
		// платеж записал параллельный запрос, он же выполняет заказ
		zaplog.Info("payment recorded concurrently")
		return true, nil
	}
	r.logOrder(ctx, zaplog, orderID, fmt.Sprintf("payment %s of %s %s recorded (%s)",
		p.ID, amount.StringFixed(2), payment.Currency, payment.Status))

	if payment.IsComplete {
		if err := r.purchase(ctx, zaplog, orderID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// paymentUpdated завершает ранее записанный платеж, если сумма совпадает
func (r *reconciler) paymentUpdated(ctx context.Context, zaplog *zap.Logger, p notification.Payment) (bool, error) {
	if p.ID == "" {
		return false, malformed(errors.New("payment without id"))
	}
	zaplog = zaplog.With(zap.String("reference", p.ID))
	timestamp := p.Timestamp(r.now())

	status, err := notification.ParsePaymentStatus(p.Status)
	if err != nil {
		return r.unknownStatus(zaplog, err)
	}
	if status != notification.PaymentStatusCompleted && status != notification.PaymentStatusCaptured {
		zaplog.Debug("payment update requires no action", zap.String("status", status.String()))
		return true, nil
	}

	payment, err := r.payments.PaymentGetByReference(ctx, p.ID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	if payment.IsNew() {
		r.mismatch(ctx, zaplog, "", "payment not found")
		return true, nil
	}
	if payment.IsComplete {
		zaplog.Info("payment already complete", zap.String("order", payment.OrderID))
		return true, nil
	}

	total := p.Total()
	if !strings.EqualFold(total.Currency, payment.Currency) {
		r.mismatch(ctx, zaplog, payment.OrderID,
			fmt.Sprintf("payment %s currency %s does not match recorded %s", p.ID, total.Currency, payment.Currency))
		return true, nil
	}
	reported, err := r.currency.FromMinorUnits(total.Currency, total.Amount)
	if err != nil {
		return false, malformed(err)
	}
	equal, err := r.currency.Equal(payment.Currency, reported, payment.Amount)
	if err != nil {
		return false, malformed(err)
	}
	if !equal {
		r.mismatch(ctx, zaplog, payment.OrderID,
			fmt.Sprintf("payment %s total %s does not match recorded %s", p.ID, reported.String(), payment.Amount.String()),
			zap.String("reported", reported.String()),
			zap.String("recorded", payment.Amount.String()))
		return true, nil
	}

	completed, err := r.payments.PaymentComplete(ctx, p.ID, status.String(), timestamp)
	if err != nil {
		return false, fmt.Errorf("complete payment %s: %w", p.ID, err)
	}
	if !completed {
		zaplog.Info("payment completed concurrently", zap.String("order", payment.OrderID))
		return true, nil
	}

	if err := r.purchase(ctx, zaplog, payment.OrderID); err != nil {
		return false, err
	}
	r.logOrder(ctx, zaplog, payment.OrderID, fmt.Sprintf("payment %s verified", p.ID))
	return true, nil
}
