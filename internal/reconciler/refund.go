package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/balance"
	"github.com/iurnickita/paywebhook/internal/notification"
)

func (r *reconciler) refundCreated(_ context.Context, zaplog *zap.Logger, refund notification.Refund) (bool, error) {
	// Суммы обрабатываются в refund.updated
	zaplog.Info("refund created",
		zap.String("refund", refund.ID),
		zap.String("reference", refund.PaymentID),
		zap.String("status", refund.Status))
	return true, nil
}

// refundUpdated записывает завершенный возврат отрицательным платежом.
// Возврат на всю сумму заказа отменяет заказ, частичный только записывается
func (r *reconciler) refundUpdated(ctx context.Context, zaplog *zap.Logger, refund notification.Refund) (bool, error) {
	if refund.ID == "" || refund.PaymentID == "" {
		return false, malformed(errors.New("refund without id or payment id"))
	}
	zaplog = zaplog.With(zap.String("refund", refund.ID), zap.String("reference", refund.PaymentID))

	status, err := notification.ParseRefundStatus(refund.Status)
	if err != nil {
		return r.unknownStatus(zaplog, err)
	}
	if status != notification.RefundStatusCompleted {
		zaplog.Info("refund is not completed", zap.String("status", status.String()))
		return true, nil
	}

	original, err := r.payments.PaymentGetByReference(ctx, refund.PaymentID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", refund.PaymentID, err)
	}
	if original.IsNew() || !original.IsComplete {
		r.mismatch(ctx, zaplog, original.OrderID, fmt.Sprintf("refund %s has no completed payment %s", refund.ID, refund.PaymentID))
		return true, nil
	}

	order, found, err := r.order(ctx, original.OrderID)
	if err != nil {
		return false, err
	}
	if !found {
		zaplog.Warn("order not found", zap.String("order", original.OrderID))
		return true, nil
	}

	// Суммы в разных валютах не сравниваются
	if !strings.EqualFold(refund.AmountMoney.Currency, original.Currency) ||
		!strings.EqualFold(refund.AmountMoney.Currency, order.Currency) {
		r.mismatch(ctx, zaplog, order.ID,
			fmt.Sprintf("refund %s currency %s does not match payment %s and order %s",
				refund.ID, refund.AmountMoney.Currency, original.Currency, order.Currency))
		return true, nil
	}

	amount, err := r.currency.FromMinorUnits(refund.AmountMoney.Currency, refund.AmountMoney.Amount)
	if err != nil {
		return false, malformed(err)
	}
	amount = amount.Abs().Neg()

	entry, err := r.payments.PaymentGetByReference(ctx, refund.ID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", refund.ID, err)
	}
	if !entry.IsNew() {
		zaplog.Info("refund already recorded", zap.String("order", order.ID))
		// отмена заказа идемпотентна: повторяем на случай сбоя предыдущей доставки
		if balance.CoversTotal(order, entry.Amount) {
			return r.fullRefund(ctx, zaplog, order.ID)
		}
		return true, nil
	}

	entry.OrderID = order.ID
	entry.Amount = amount
	entry.Currency = strings.ToUpper(refund.AmountMoney.Currency)
	entry.Status = status.String()
	entry.Method = MethodRefund
	entry.Comment = strings.TrimSpace(fmt.Sprintf("%s refund of payment %s %s", r.config.GetDisplayName(), refund.PaymentID, refund.Reason))
	entry.MarkComplete(r.now())

	created, err := r.createPayment(ctx, &entry)
	if err != nil {
		return false, err
	}
	if !created {
		zaplog.Info("refund recorded concurrently", zap.String("order", order.ID))
		return true, nil
	}

	full := balance.CoversTotal(order, amount)
	r.logOrder(ctx, zaplog, order.ID, fmt.Sprintf("refund %s of %s %s recorded (full: %t)",
		refund.ID, amount.StringFixed(2), entry.Currency, full))
	if !full {
		return true, nil
	}
	return r.fullRefund(ctx, zaplog, order.ID)
}

func (r *reconciler) fullRefund(ctx context.Context, zaplog *zap.Logger, orderID string) (bool, error) {
	ok, err := r.fulfillment.HandleFullRefund(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("refund order %s: %w", orderID, err)
	}
	if !ok {
		zaplog.Warn("full refund handling declined", zap.String("order", orderID))
	}
	return true, nil
}
