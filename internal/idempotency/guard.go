package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/store"
)

// ErrInFlight - уведомление с тем же event_id сейчас обрабатывается другим запросом
var ErrInFlight = errors.New("notification is being processed by another delivery")

type Store interface {
	NotificationReserve(ctx context.Context, notification model.Notification) (bool, error)
	NotificationGet(ctx context.Context, eventID string) (model.Notification, error)
	NotificationDone(ctx context.Context, eventID string) error
	NotificationRelease(ctx context.Context, eventID string) error
}

type Guard interface {
	// IsFirstDelivery резервирует event_id. false без ошибки - уведомление уже обработано
	IsFirstDelivery(ctx context.Context, eventID string, eventType string) (bool, error)
	// Done - обработка завершена, повторные доставки будут пропущены
	Done(ctx context.Context, eventID string) error
	// Release - обработка не удалась, повторная доставка обработает уведомление заново
	Release(ctx context.Context, eventID string) error
}

// DefaultLease - срок резерва, если не задан
const DefaultLease = 5 * time.Minute

type guard struct {
	store Store
	lease time.Duration
	now   func() time.Time
}

type Option func(*guard)

func WithClock(now func() time.Time) Option {
	return func(g *guard) {
		g.now = now
	}
}

// NewGuard. lease - сколько живет резерв processing: если доставка не сняла его
// (сбой процесса, потерянное соединение с базой), после этого срока уведомление
// обработает повторная доставка
func NewGuard(store Store, lease time.Duration, opts ...Option) Guard {
	if lease <= 0 {
		lease = DefaultLease
	}
	g := &guard{store: store, lease: lease, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *guard) IsFirstDelivery(ctx context.Context, eventID string, eventType string) (bool, error) {
	// Вторая попытка нужна, если резерв сняли между Reserve и Get
	for attempt := 0; attempt < 2; attempt++ {
		now := g.now()
		reserved, err := g.store.NotificationReserve(ctx, model.Notification{
			EventID:    eventID,
			EventType:  eventType,
			ReceivedAt: now,
			ExpiresAt:  now.Add(g.lease),
		})
		if err != nil {
			return false, err
		}
		if reserved {
			return true, nil
		}

		notification, err := g.store.NotificationGet(ctx, eventID)
		if err != nil {
			if errors.Is(err, store.ErrNoRows) {
				continue
			}
			return false, err
		}
		if notification.State == model.NotificationStateProcessed {
			return false, nil
		}
		return false, ErrInFlight
	}
	return false, ErrInFlight
}

func (g *guard) Done(ctx context.Context, eventID string) error {
	return g.store.NotificationDone(ctx, eventID)
}

func (g *guard) Release(ctx context.Context, eventID string) error {
	return g.store.NotificationRelease(ctx, eventID)
}
