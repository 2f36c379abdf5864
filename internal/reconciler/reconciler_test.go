package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/currency"
	"github.com/iurnickita/paywebhook/internal/fulfillment"
	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/notification"
	"github.com/iurnickita/paywebhook/internal/service/gatewayclient"
	"github.com/iurnickita/paywebhook/internal/store/memstore"
)

type gatewayConfig struct{}

func (gatewayConfig) GetSecretKey() []byte      { return []byte("whsec-test") }
func (gatewayConfig) GetCompleteStatus() string { return "COMPLETED" }
func (gatewayConfig) GetDisplayName() string    { return "Square" }

// Заказы провайдера: id -> reference_id
type gateway struct {
	orders map[string]string
	err    error
}

func (g gateway) LookupOrder(_ context.Context, providerOrderID string) (model.ProviderOrder, error) {
	if g.err != nil {
		return model.ProviderOrder{}, g.err
	}
	reference, ok := g.orders[providerOrderID]
	if !ok {
		return model.ProviderOrder{}, gatewayclient.ErrOrderNotFound
	}
	return model.ProviderOrder{ID: providerOrderID, ReferenceID: reference, State: "OPEN"}, nil
}

// Считает вызовы выполнения заказа
type countingFulfillment struct {
	fulfillment.Fulfillment

	mu        sync.Mutex
	purchases map[string]int
	refunds   map[string]int
}

func (f *countingFulfillment) HandlePurchase(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	f.purchases[orderID]++
	f.mu.Unlock()
	return f.Fulfillment.HandlePurchase(ctx, orderID)
}

func (f *countingFulfillment) HandleFullRefund(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	f.refunds[orderID]++
	f.mu.Unlock()
	return f.Fulfillment.HandleFullRefund(ctx, orderID)
}

type testEnv struct {
	store       *memstore.Store
	fulfillment *countingFulfillment
	reconciler  Reconciler
}

func newTestEnv(t *testing.T, gw GatewayClient) *testEnv {
	t.Helper()

	s := memstore.New()
	f := &countingFulfillment{
		Fulfillment: fulfillment.NewFulfillment(s, zap.NewNop()),
		purchases:   make(map[string]int),
		refunds:     make(map[string]int),
	}
	r := NewReconciler(Deps{
		Orders:      s,
		Payments:    s,
		Gateway:     gw,
		Config:      gatewayConfig{},
		Currency:    currency.NewConverter(),
		Fulfillment: f,
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) },
	})
	return &testEnv{store: s, fulfillment: f, reconciler: r}
}

// Заказ на сумму total одной позицией
func (env *testEnv) order(t *testing.T, id string, state model.OrderState, total string) {
	t.Helper()
	require.NoError(t, env.store.OrderPost(context.Background(), model.Order{
		ID:       id,
		State:    state,
		Currency: "USD",
		Items:    []model.OrderItem{{SKU: "SKU-1", Quantity: 1, Price: decimal.RequireFromString(total)}},
	}))
}

func (env *testEnv) reconcile(t *testing.T, event notification.Event) (bool, error) {
	t.Helper()
	envelope := notification.Envelope{ID: "evt-1", Type: string(event.Kind())}
	return env.reconciler.Reconcile(context.Background(), envelope, event)
}

func (env *testEnv) payment(t *testing.T, reference string) model.Payment {
	t.Helper()
	payment, err := env.store.PaymentGetByReference(context.Background(), reference)
	require.NoError(t, err)
	return payment
}

func (env *testEnv) orderState(t *testing.T, id string) model.OrderState {
	t.Helper()
	order, err := env.store.OrderGet(context.Background(), id)
	require.NoError(t, err)
	return order.State
}

func usd(amount int64) notification.Money {
	return notification.Money{Amount: amount, Currency: "USD"}
}

func TestPaymentCreatedCompleted(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	event := notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", SourceType: "CARD", AmountMoney: usd(2500),
	}}
	ok, err := env.reconcile(t, event)
	require.NoError(t, err)
	require.True(t, ok)

	payment := env.payment(t, "pay-1")
	require.False(t, payment.IsNew())
	require.True(t, payment.IsComplete)
	require.Equal(t, "ORD-1", payment.OrderID)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("25.00")))
	require.Equal(t, "CARD", payment.Method)
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))

	// повторное событие (другой event_id) не выполняет заказ второй раз
	ok, err = env.reconcile(t, event)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
}

func TestPaymentCreatedApproved(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	ok, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "APPROVED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)
	require.True(t, ok)

	payment := env.payment(t, "pay-1")
	require.False(t, payment.IsNew())
	require.False(t, payment.IsComplete)
	require.Zero(t, env.fulfillment.purchases["ORD-1"])
}

func TestPaymentCreatedIgnored(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1", "sq-2": "ORD-404"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	tests := map[string]notification.Payment{
		"zero amount":    {ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", AmountMoney: usd(0)},
		"pending":        {ID: "pay-2", OrderID: "sq-1", Status: "PENDING", AmountMoney: usd(2500)},
		"no provider":    {ID: "pay-3", OrderID: "sq-404", Status: "COMPLETED", AmountMoney: usd(2500)},
		"no order":       {ID: "pay-4", OrderID: "sq-2", Status: "COMPLETED", AmountMoney: usd(2500)},
		"no provider id": {ID: "pay-5", Status: "COMPLETED", AmountMoney: usd(2500)},
	}
	for name, p := range tests {
		ok, err := env.reconcile(t, notification.PaymentCreated{Payment: p})
		require.NoError(t, err, name)
		require.True(t, ok, name)
		require.True(t, env.payment(t, p.ID).IsNew(), name)
	}
	require.Zero(t, env.fulfillment.purchases["ORD-1"])
}

func TestPaymentCreatedGatewayFailure(t *testing.T) {
	env := newTestEnv(t, gateway{err: errors.New("connection reset")})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	ok, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", AmountMoney: usd(2500),
	}})
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, env.payment(t, "pay-1").IsNew())
}

func TestPaymentUnknownStatus(t *testing.T) {
	env := newTestEnv(t, gateway{})

	ok, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "SETTLED", AmountMoney: usd(2500),
	}})
	require.ErrorIs(t, err, notification.ErrUnknownStatus)
	require.False(t, ok)
}

func TestPaymentMalformed(t *testing.T) {
	env := newTestEnv(t, gateway{})

	ok, err := env.reconcile(t, notification.PaymentUpdated{Payment: notification.Payment{Status: "COMPLETED"}})
	require.ErrorIs(t, err, notification.ErrMalformedPayload)
	require.False(t, ok)
}

func TestPaymentUpdated(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	_, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "APPROVED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)

	// сумма не совпадает - без изменений, доставка подтверждается
	ok, err := env.reconcile(t, notification.PaymentUpdated{Payment: notification.Payment{
		ID: "pay-1", Status: "COMPLETED", AmountMoney: usd(2500), TotalMoney: &notification.Money{Amount: 2600, Currency: "USD"},
	}})
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, env.payment(t, "pay-1").IsComplete)

	// не завершающий статус
	ok, err = env.reconcile(t, notification.PaymentUpdated{Payment: notification.Payment{
		ID: "pay-1", Status: "APPROVED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, env.payment(t, "pay-1").IsComplete)

	// совпадает
	update := notification.PaymentUpdated{Payment: notification.Payment{
		ID: "pay-1", Status: "CAPTURED", AmountMoney: usd(2500), UpdatedAt: "2026-10-18T09:00:00Z",
	}}
	ok, err = env.reconcile(t, update)
	require.NoError(t, err)
	require.True(t, ok)

	payment := env.payment(t, "pay-1")
	require.True(t, payment.IsComplete)
	require.Equal(t, "CAPTURED", payment.Status)
	require.Equal(t, 18, payment.CompletedAt.Day())
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))

	// повторно - платеж уже завершен
	ok, err = env.reconcile(t, update)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
}

func TestPaymentUpdatedMissingPayment(t *testing.T) {
	env := newTestEnv(t, gateway{})

	ok, err := env.reconcile(t, notification.PaymentUpdated{Payment: notification.Payment{
		ID: "pay-404", Status: "COMPLETED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, env.payment(t, "pay-404").IsNew())
}

func TestMonotonicCompletion(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	_, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)
	require.True(t, env.payment(t, "pay-1").IsComplete)

	events := []notification.Event{
		notification.PaymentCreated{Payment: notification.Payment{ID: "pay-1", OrderID: "sq-1", Status: "APPROVED", AmountMoney: usd(2500)}},
		notification.PaymentUpdated{Payment: notification.Payment{ID: "pay-1", Status: "PENDING", AmountMoney: usd(2500)}},
		notification.PaymentUpdated{Payment: notification.Payment{ID: "pay-1", Status: "FAILED", AmountMoney: usd(100)}},
		notification.RefundCreated{Refund: notification.Refund{ID: "ref-1", PaymentID: "pay-1", Status: "PENDING"}},
	}
	for _, event := range events {
		ok, err := env.reconcile(t, event)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, env.payment(t, "pay-1").IsComplete, event.Kind())
	}
}

func TestInvoicePaymentMade(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		paid      int64
		wantNew   bool
		wantTotal string
	}{
		{name: "paid in full", status: "PAID", paid: 10000, wantTotal: "100.00"},
		{name: "overpaid", status: "PAID", paid: 12000, wantTotal: "100.00"},
		{name: "paid below balance", status: "PAID", paid: 9000, wantNew: true},
		{name: "partially paid", status: "PARTIALLY_PAID", paid: 4000, wantTotal: "40.00"},
		{name: "partially paid above balance", status: "PARTIALLY_PAID", paid: 15000, wantTotal: "100.00"},
		{name: "unpaid", status: "UNPAID", paid: 0, wantNew: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, gateway{})
			env.order(t, "ORD-1", model.OrderStateInProgress, "100.00")

			ok, err := env.reconcile(t, notification.InvoicePaymentMade{Invoice: notification.Invoice{
				ID: "inv-1", InvoiceNumber: "ORD-1", Status: tt.status,
				PaymentRequests: []notification.PaymentRequest{
					{UID: "req-1", TotalCompletedAmountMoney: &notification.Money{Amount: tt.paid, Currency: "USD"}},
				},
			}})
			require.NoError(t, err)
			require.True(t, ok)

			payment := env.payment(t, "req-1")
			require.Equal(t, tt.wantNew, payment.IsNew())
			if tt.wantNew {
				return
			}
			require.True(t, payment.Amount.Equal(decimal.RequireFromString(tt.wantTotal)), payment.Amount.String())
			require.False(t, payment.IsComplete)
			require.Equal(t, MethodInvoice, payment.Method)
			require.Zero(t, env.fulfillment.purchases["ORD-1"])
		})
	}
}

func TestInvoicePaymentMadeOnce(t *testing.T) {
	env := newTestEnv(t, gateway{})
	env.order(t, "ORD-1", model.OrderStateInProgress, "100.00")

	invoice := notification.Invoice{
		ID: "inv-1", InvoiceNumber: "ORD-1", Status: "PARTIALLY_PAID",
		PaymentRequests: []notification.PaymentRequest{
			{UID: "req-1", TotalCompletedAmountMoney: &notification.Money{Amount: 4000, Currency: "USD"}},
		},
	}
	_, err := env.reconcile(t, notification.InvoicePaymentMade{Invoice: invoice})
	require.NoError(t, err)

	invoice.PaymentRequests[0].TotalCompletedAmountMoney.Amount = 7000
	_, err = env.reconcile(t, notification.InvoicePaymentMade{Invoice: invoice})
	require.NoError(t, err)

	payments, err := env.store.PaymentGetByOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.True(t, payments[0].Amount.Equal(decimal.RequireFromString("40")))
}

func TestInvoicePaymentMadeNewOrder(t *testing.T) {
	env := newTestEnv(t, gateway{})
	env.order(t, "ORD-1", model.OrderStateNew, "100.00")

	ok, err := env.reconcile(t, notification.InvoicePaymentMade{Invoice: notification.Invoice{
		ID: "inv-1", InvoiceNumber: "ORD-1", Status: "PAID",
		PaymentRequests: []notification.PaymentRequest{
			{UID: "req-1", TotalCompletedAmountMoney: &notification.Money{Amount: 10000, Currency: "USD"}},
		},
	}})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, env.payment(t, "req-1").IsNew())
}

func TestInvoiceCreatedOrderNotFound(t *testing.T) {
	env := newTestEnv(t, gateway{})

	ok, err := env.reconcile(t, notification.InvoiceChanged{
		Type:    notification.EventInvoiceCreated,
		Invoice: notification.Invoice{ID: "inv-1", InvoiceNumber: "ORD-100", Status: "UNPAID"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, env.payment(t, "inv-1").IsNew())
	require.Zero(t, env.fulfillment.purchases["ORD-100"])
}

func TestInvoiceChanged(t *testing.T) {
	env := newTestEnv(t, gateway{})
	env.order(t, "ORD-1", model.OrderStateInProgress, "100.00")

	ok, err := env.reconcile(t, notification.InvoiceChanged{
		Type:    notification.EventInvoiceCreated,
		Invoice: notification.Invoice{ID: "inv-1", InvoiceNumber: "ORD-1", Status: "DRAFT"},
	})
	require.NoError(t, err)
	require.True(t, ok)

	payment := env.payment(t, "inv-1")
	require.False(t, payment.IsNew())
	require.True(t, payment.Amount.IsZero())
	require.False(t, payment.IsComplete)
	require.Equal(t, "DRAFT", payment.Status)
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))

	ok, err = env.reconcile(t, notification.InvoiceChanged{
		Type:    notification.EventInvoicePublished,
		Invoice: notification.Invoice{ID: "inv-1", InvoiceNumber: "ORD-1", Status: "UNPAID"},
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "UNPAID", env.payment(t, "inv-1").Status)
	require.Equal(t, 2, env.fulfillment.purchases["ORD-1"])

	payments, err := env.store.PaymentGetByOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

// Заказ на 100.00 с завершенным платежом pay-1
func refundEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "100.00")
	_, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", AmountMoney: usd(10000),
	}})
	require.NoError(t, err)
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))
	return env
}

func TestRefundUpdatedFull(t *testing.T) {
	env := refundEnv(t)

	event := notification.RefundUpdated{Refund: notification.Refund{
		ID: "ref-1", PaymentID: "pay-1", Status: "COMPLETED", AmountMoney: usd(10000),
	}}
	ok, err := env.reconcile(t, event)
	require.NoError(t, err)
	require.True(t, ok)

	entry := env.payment(t, "ref-1")
	require.True(t, entry.Amount.Equal(decimal.RequireFromString("-100.00")))
	require.True(t, entry.IsComplete)
	require.Equal(t, "ORD-1", entry.OrderID)
	require.Equal(t, 1, env.fulfillment.refunds["ORD-1"])
	require.Equal(t, model.OrderStateRefunded, env.orderState(t, "ORD-1"))

	// повторная доставка не создает вторую запись
	ok, err = env.reconcile(t, event)
	require.NoError(t, err)
	require.True(t, ok)
	payments, err := env.store.PaymentGetByOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, model.OrderStateRefunded, env.orderState(t, "ORD-1"))
}

func TestRefundUpdatedPartial(t *testing.T) {
	env := refundEnv(t)

	ok, err := env.reconcile(t, notification.RefundUpdated{Refund: notification.Refund{
		ID: "ref-1", PaymentID: "pay-1", Status: "COMPLETED", AmountMoney: usd(5000),
	}})
	require.NoError(t, err)
	require.True(t, ok)

	entry := env.payment(t, "ref-1")
	require.True(t, entry.Amount.Equal(decimal.RequireFromString("-50.00")))
	require.Zero(t, env.fulfillment.refunds["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))
}

func TestRefundUpdatedCurrencyMismatch(t *testing.T) {
	env := refundEnv(t)

	// та же сумма в другой валюте не покрывает заказ в USD
	ok, err := env.reconcile(t, notification.RefundUpdated{Refund: notification.Refund{
		ID: "ref-1", PaymentID: "pay-1", Status: "COMPLETED", AmountMoney: notification.Money{Amount: 10000, Currency: "EUR"},
	}})
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, env.payment(t, "ref-1").IsNew())
	require.Zero(t, env.fulfillment.refunds["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))

	entries, err := env.store.OrderLogGet(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Contains(t, entries[len(entries)-1].Message, "currency EUR does not match")
}

func TestRefundUpdatedSkipped(t *testing.T) {
	env := refundEnv(t)

	tests := map[string]notification.Refund{
		"pending":         {ID: "ref-1", PaymentID: "pay-1", Status: "PENDING", AmountMoney: usd(10000)},
		"unknown payment": {ID: "ref-2", PaymentID: "pay-404", Status: "COMPLETED", AmountMoney: usd(10000)},
	}
	for name, refund := range tests {
		ok, err := env.reconcile(t, notification.RefundUpdated{Refund: refund})
		require.NoError(t, err, name)
		require.True(t, ok, name)
		require.True(t, env.payment(t, refund.ID).IsNew(), name)
	}
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))
}

func TestRefundCreated(t *testing.T) {
	env := refundEnv(t)

	ok, err := env.reconcile(t, notification.RefundCreated{Refund: notification.Refund{
		ID: "ref-1", PaymentID: "pay-1", Status: "PENDING", AmountMoney: usd(10000),
	}})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, env.payment(t, "ref-1").IsNew())
}

func TestUnhandled(t *testing.T) {
	env := newTestEnv(t, gateway{})

	ok, err := env.reconcile(t, notification.Unhandled{Type: "customer.created"})
	require.NoError(t, err)
	require.True(t, ok)
}

// Параллельные доставки разных событий об одном платеже
func reconcileConcurrently(t *testing.T, env *testEnv, n int, event notification.Event) {
	t.Helper()

	type result struct {
		ok  bool
		err error
	}
	results := make([]result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envelope := notification.Envelope{ID: fmt.Sprintf("evt-%d", i), Type: string(event.Kind())}
			ok, err := env.reconciler.Reconcile(context.Background(), envelope, event)
			results[i] = result{ok: ok, err: err}
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NoError(t, res.err)
		require.True(t, res.ok)
	}
}

func TestPaymentCreatedConcurrent(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	reconcileConcurrently(t, env, 16, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "COMPLETED", SourceType: "CARD", AmountMoney: usd(2500),
	}})

	payments, err := env.store.PaymentGetByOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.True(t, payments[0].IsComplete)
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))
}

func TestPaymentUpdatedConcurrent(t *testing.T) {
	env := newTestEnv(t, gateway{orders: map[string]string{"sq-1": "ORD-1"}})
	env.order(t, "ORD-1", model.OrderStateInProgress, "25.00")

	_, err := env.reconcile(t, notification.PaymentCreated{Payment: notification.Payment{
		ID: "pay-1", OrderID: "sq-1", Status: "APPROVED", AmountMoney: usd(2500),
	}})
	require.NoError(t, err)
	require.Zero(t, env.fulfillment.purchases["ORD-1"])

	reconcileConcurrently(t, env, 16, notification.PaymentUpdated{Payment: notification.Payment{
		ID: "pay-1", Status: "COMPLETED", AmountMoney: usd(2500),
	}})

	require.True(t, env.payment(t, "pay-1").IsComplete)
	require.Equal(t, 1, env.fulfillment.purchases["ORD-1"])
	require.Equal(t, model.OrderStatePaid, env.orderState(t, "ORD-1"))
}
