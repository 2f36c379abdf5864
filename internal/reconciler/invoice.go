package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/notification"
)

// invoicePaymentMade - оплата по счету. Платеж создается незавершенным,
// завершение приходит отдельным событием
func (r *reconciler) invoicePaymentMade(ctx context.Context, zaplog *zap.Logger, invoice notification.Invoice) (bool, error) {
	orderID := strings.TrimSpace(invoice.InvoiceNumber)
	if orderID == "" {
		zaplog.Warn("invoice without order number", zap.String("invoice", invoice.ID))
		return true, nil
	}

	order, found, err := r.order(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !found {
		zaplog.Info("order not found", zap.String("order", orderID))
		return true, nil
	}
	if order.State == model.OrderStateNew {
		r.logOrder(ctx, zaplog, orderID, fmt.Sprintf("invoice %s payment ignored: order is not checked out", invoice.ID))
		return true, nil
	}

	status, err := notification.ParseInvoiceStatus(invoice.Status)
	if err != nil {
		return r.unknownStatus(zaplog, err)
	}

	request, ok := invoice.PrimaryRequest()
	if !ok || request.UID == "" {
		zaplog.Warn("invoice without payment request", zap.String("invoice", invoice.ID))
		return true, nil
	}

	paid := decimal.Zero
	currencyCode := order.Currency
	if money := request.TotalCompletedAmountMoney; money != nil {
		paid, err = r.currency.FromMinorUnits(money.Currency, money.Amount)
		if err != nil {
			return false, malformed(err)
		}
		currencyCode = money.Currency
	}

	amount := invoiceAmountPaid(status, paid, order.BalanceDue)
	if !amount.IsPositive() {
		zaplog.Info("invoice payment carries no amount",
			zap.String("order", orderID),
			zap.String("status", status.String()),
			zap.String("paid", paid.String()),
			zap.String("balance_due", order.BalanceDue.String()))
		return true, nil
	}

	payment, err := r.payments.PaymentGetByReference(ctx, request.UID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", request.UID, err)
	}
	if !payment.IsNew() {
		zaplog.Info("invoice payment already recorded", zap.String("reference", request.UID))
		return true, nil
	}

	payment.OrderID = orderID
	payment.Amount = amount
	payment.Currency = currencyCode
	payment.Status = status.String()
	payment.Method = MethodInvoice
	payment.Comment = fmt.Sprintf("%s invoice %s", r.config.GetDisplayName(), invoice.ID)
	created, err := r.createPayment(ctx, &payment)
	if err != nil {
		return false, err
	}
	if created {
		r.logOrder(ctx, zaplog, orderID, fmt.Sprintf("invoice %s payment of %s %s recorded", invoice.ID, amount.StringFixed(2), currencyCode))
	}
	return true, nil
}

// invoiceAmountPaid - сумма, поступившая по счету.
// PAID и оплачено не меньше остатка - остаток; PARTIALLY_PAID - оплачено
// (накопительно по данным провайдера), но не больше остатка; иначе 0
func invoiceAmountPaid(status notification.InvoiceStatus, paid decimal.Decimal, balanceDue decimal.Decimal) decimal.Decimal {
	switch status {
	case notification.InvoiceStatusPaid:
		if paid.GreaterThanOrEqual(balanceDue) {
			return balanceDue
		}
	case notification.InvoiceStatusPartiallyPaid:
		return decimal.Min(paid, balanceDue)
	}
	return decimal.Zero
}

// invoiceChanged - счет создан, изменен или опубликован. Запись счета хранится как
// платеж с нулевой суммой, заказ принимается условно (оплата по счету отложена)
func (r *reconciler) invoiceChanged(ctx context.Context, zaplog *zap.Logger, invoice notification.Invoice) (bool, error) {
	if invoice.ID == "" {
		return false, malformed(fmt.Errorf("invoice without id"))
	}
	orderID := strings.TrimSpace(invoice.InvoiceNumber)
	if orderID == "" {
		zaplog.Warn("invoice without order number", zap.String("invoice", invoice.ID))
		return true, nil
	}

	order, found, err := r.order(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !found {
		zaplog.Info("order not found", zap.String("order", orderID), zap.String("invoice", invoice.ID))
		return true, nil
	}

	status, err := notification.ParseInvoiceStatus(invoice.Status)
	if err != nil {
		return r.unknownStatus(zaplog, err)
	}

	payment, err := r.payments.PaymentGetByReference(ctx, invoice.ID)
	if err != nil {
		return false, fmt.Errorf("payment %s: %w", invoice.ID, err)
	}
	fill := func(payment *model.Payment) {
		payment.OrderID = orderID
		payment.Amount = decimal.Zero
		payment.Currency = order.Currency
		payment.Status = status.String()
		payment.Method = MethodInvoice
		payment.Comment = fmt.Sprintf("%s invoice %s", r.config.GetDisplayName(), invoice.ID)
	}
	fill(&payment)

	saved := false
	if payment.IsNew() {
		saved, err = r.createPayment(ctx, &payment)
		if err != nil {
			return false, err
		}
		if !saved {
			// запись создал параллельный запрос - обновляем ее
			payment, err = r.payments.PaymentGetByReference(ctx, invoice.ID)
			if err != nil {
				return false, fmt.Errorf("payment %s: %w", invoice.ID, err)
			}
			fill(&payment)
		}
	}
	if !saved {
		if err := r.payments.PaymentSave(ctx, &payment); err != nil {
			return false, fmt.Errorf("save payment %s: %w", invoice.ID, err)
		}
	}

	r.logOrder(ctx, zaplog, orderID, fmt.Sprintf("invoice %s is %s", invoice.ID, status.String()))
	if err := r.purchase(ctx, zaplog, orderID); err != nil {
		return false, err
	}
	return true, nil
}
