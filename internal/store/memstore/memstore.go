package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/paywebhook/internal/balance"
	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store - хранилище в памяти: без базы данных и в тестах
type Store struct {
	mu sync.RWMutex

	orders        map[string]model.Order
	orderLog      map[string][]model.OrderLogEntry
	payments      map[string]model.Payment // по reference_id
	notifications map[string]model.Notification
}

func New() *Store {
	return &Store{
		orders:        make(map[string]model.Order),
		orderLog:      make(map[string][]model.OrderLogEntry),
		payments:      make(map[string]model.Payment),
		notifications: make(map[string]model.Notification),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) OrderGet(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return model.Order{}, store.ErrNoRows
	}
	order.Items = slices.Clone(order.Items)
	order.BalanceDue = balance.Due(order, s.paymentsByOrder(id))
	return order, nil
}

func (s *Store) OrderPost(_ context.Context, order model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return store.ErrAlreadyExists
	}
	if order.State == "" {
		order.State = model.OrderStateNew
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.Items = slices.Clone(order.Items)
	s.orders[order.ID] = order
	return nil
}

func (s *Store) OrderTransition(_ context.Context, id string, to model.OrderState, from ...model.OrderState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 && !slices.Contains(from, order.State) {
		return false, nil
	}
	order.State = to
	s.orders[id] = order
	return true, nil
}

func (s *Store) OrderLog(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderLog[id] = append(s.orderLog[id], model.OrderLogEntry{
		OrderID:   id,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *Store) OrderLogGet(_ context.Context, id string) ([]model.OrderLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.orderLog[id]), nil
}

func (s *Store) PaymentGetByReference(_ context.Context, referenceID string) (model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[referenceID]
	if !ok {
		return model.NewPayment(referenceID), nil
	}
	return payment, nil
}

func (s *Store) PaymentGetByOrder(_ context.Context, orderID string) ([]model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.paymentsByOrder(orderID), nil
}

func (s *Store) paymentsByOrder(orderID string) []model.Payment {
	var payments []model.Payment
	for _, payment := range s.payments {
		if payment.OrderID == orderID {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments
}

func (s *Store) PaymentSave(_ context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.payments[payment.ReferenceID]
	if payment.IsNew() {
		if exists {
			return store.ErrAlreadyExists
		}
		payment.ID = uuid.NewString()
		payment.CreatedAt = time.Now()
		s.payments[payment.ReferenceID] = *payment
		return nil
	}

	saved := *payment
	if exists && existing.IsComplete {
		saved.IsComplete = true
		saved.CompletedAt = existing.CompletedAt
	}
	s.payments[payment.ReferenceID] = saved
	return nil
}

func (s *Store) PaymentComplete(_ context.Context, referenceID string, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[referenceID]
	if !ok || payment.IsComplete {
		return false, nil
	}
	payment.MarkComplete(at)
	payment.Status = status
	s.payments[referenceID] = payment
	return true, nil
}

func (s *Store) NotificationReserve(_ context.Context, notification model.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.notifications[notification.EventID]; exists && !leaseExpired(existing, notification.ReceivedAt) {
		return false, nil
	}
	notification.State = model.NotificationStateProcessing
	s.notifications[notification.EventID] = notification
	return true, nil
}

func (s *Store) NotificationGet(_ context.Context, eventID string) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notification, ok := s.notifications[eventID]
	if !ok {
		return model.Notification{}, store.ErrNoRows
	}
	return notification, nil
}

func (s *Store) NotificationDone(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[eventID]
	if !ok {
		return nil
	}
	notification.State = model.NotificationStateProcessed
	s.notifications[eventID] = notification
	return nil
}

func (s *Store) NotificationRelease(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification, ok := s.notifications[eventID]; ok && notification.State == model.NotificationStateProcessing {
		delete(s.notifications, eventID)
	}
	return nil
}

// Резерв processing со сроком, истекшим к моменту now
func leaseExpired(notification model.Notification, now time.Time) bool {
	return notification.State == model.NotificationStateProcessing &&
		!notification.ExpiresAt.IsZero() &&
		notification.ExpiresAt.Before(now)
}
