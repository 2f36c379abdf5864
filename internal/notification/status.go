package notification

import (
	"fmt"
	"strings"
)

// Статусы провайдера. Строки переводятся в перечисления по таблицам,
// неизвестная строка - ошибка ErrUnknownStatus

type PaymentStatus int

const (
	PaymentStatusApproved PaymentStatus = iota + 1
	PaymentStatusPending
	PaymentStatusCompleted
	PaymentStatusCaptured
	PaymentStatusCanceled
	PaymentStatusFailed
)

var paymentStatuses = map[string]PaymentStatus{
	"APPROVED":  PaymentStatusApproved,
	"PENDING":   PaymentStatusPending,
	"COMPLETED": PaymentStatusCompleted,
	"CAPTURED":  PaymentStatusCaptured,
	"CANCELED":  PaymentStatusCanceled,
	"FAILED":    PaymentStatusFailed,
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	return parseStatus(paymentStatuses, "payment", s)
}

func (s PaymentStatus) String() string {
	return statusName(paymentStatuses, s)
}

type InvoiceStatus int

const (
	InvoiceStatusDraft InvoiceStatus = iota + 1
	InvoiceStatusUnpaid
	InvoiceStatusScheduled
	InvoiceStatusPartiallyPaid
	InvoiceStatusPaid
	InvoiceStatusPartiallyRefunded
	InvoiceStatusRefunded
	InvoiceStatusCanceled
	InvoiceStatusFailed
	InvoiceStatusPaymentPending
)

var invoiceStatuses = map[string]InvoiceStatus{
	"DRAFT":              InvoiceStatusDraft,
	"UNPAID":             InvoiceStatusUnpaid,
	"SCHEDULED":          InvoiceStatusScheduled,
	"PARTIALLY_PAID":     InvoiceStatusPartiallyPaid,
	"PAID":               InvoiceStatusPaid,
	"PARTIALLY_REFUNDED": InvoiceStatusPartiallyRefunded,
	"REFUNDED":           InvoiceStatusRefunded,
	"CANCELED":           InvoiceStatusCanceled,
	"FAILED":             InvoiceStatusFailed,
	"PAYMENT_PENDING":    InvoiceStatusPaymentPending,
}

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	return parseStatus(invoiceStatuses, "invoice", s)
}

func (s InvoiceStatus) String() string {
	return statusName(invoiceStatuses, s)
}

type RefundStatus int

const (
	RefundStatusPending RefundStatus = iota + 1
	RefundStatusCompleted
	RefundStatusRejected
	RefundStatusFailed
)

var refundStatuses = map[string]RefundStatus{
	"PENDING":   RefundStatusPending,
	"COMPLETED": RefundStatusCompleted,
	"REJECTED":  RefundStatusRejected,
	"FAILED":    RefundStatusFailed,
}

func ParseRefundStatus(s string) (RefundStatus, error) {
	return parseStatus(refundStatuses, "refund", s)
}

func (s RefundStatus) String() string {
	return statusName(refundStatuses, s)
}

func parseStatus[T comparable](table map[string]T, kind string, s string) (T, error) {
	status, ok := table[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s status %q", ErrUnknownStatus, kind, s)
	}
	return status, nil
}

func statusName[T comparable](table map[string]T, status T) string {
	for name, s := range table {
		if s == status {
			return name
		}
	}
	return "UNKNOWN"
}
