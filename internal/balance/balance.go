package balance

import (
	"github.com/shopspring/decimal"

	"github.com/iurnickita/paywebhook/internal/model"
)

// Subtotal - сумма позиций заказа (количество * цена)
func Subtotal(order model.Order) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}

// Total - полная сумма к оплате по заказу
func Total(order model.Order) decimal.Decimal {
	return Subtotal(order).Add(order.MiscCharges)
}

// Paid - сумма завершенных платежей заказа. Возвраты записаны отрицательными суммами
func Paid(order model.Order, payments []model.Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, payment := range payments {
		if payment.OrderID != order.ID || !payment.IsComplete {
			continue
		}
		paid = paid.Add(payment.Amount)
	}
	return paid
}

// Due - остаток к оплате. Не бывает отрицательным
func Due(order model.Order, payments []model.Payment) decimal.Decimal {
	due := Total(order).Sub(Paid(order, payments))
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// CoversTotal - возврат на сумму refund покрывает весь заказ (полный возврат).
// refund может быть как положительным, так и отрицательным
func CoversTotal(order model.Order, refund decimal.Decimal) bool {
	return refund.Abs().GreaterThanOrEqual(Total(order))
}
