package fulfillment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/store"
)

type Store interface {
	OrderGet(ctx context.Context, id string) (model.Order, error)
	OrderTransition(ctx context.Context, id string, to model.OrderState, from ...model.OrderState) (bool, error)
	OrderLog(ctx context.Context, id string, message string) error
}

type Fulfillment interface {
	// HandlePurchase переводит заказ в paid. Повторный вызов для оплаченного заказа - true
	HandlePurchase(ctx context.Context, orderID string) (bool, error)
	// HandleFullRefund переводит заказ в refunded. Повторный вызов - true
	HandleFullRefund(ctx context.Context, orderID string) (bool, error)
}

type fulfillment struct {
	store  Store
	zaplog *zap.Logger
}

func NewFulfillment(store Store, zaplog *zap.Logger) Fulfillment {
	return &fulfillment{store: store, zaplog: zaplog}
}

func (f *fulfillment) HandlePurchase(ctx context.Context, orderID string) (bool, error) {
	return f.transition(ctx, orderID, model.OrderStatePaid, "purchase fulfilled",
		model.OrderStateNew, model.OrderStateInProgress)
}

func (f *fulfillment) HandleFullRefund(ctx context.Context, orderID string) (bool, error) {
	return f.transition(ctx, orderID, model.OrderStateRefunded, "order fully refunded",
		model.OrderStateInProgress, model.OrderStatePaid)
}

func (f *fulfillment) transition(ctx context.Context, orderID string, to model.OrderState, message string, from ...model.OrderState) (bool, error) {
	ok, err := f.store.OrderTransition(ctx, orderID, to, from...)
	if err != nil {
		return false, err
	}
	if ok {
		f.zaplog.Info(message,
			zap.String("order", orderID),
			zap.String("state", string(to)))
		// Переход уже выполнен: сбой журнала не должен вызывать повторную доставку
		if err := f.store.OrderLog(ctx, orderID, message); err != nil {
			f.zaplog.Warn("order log write failed",
				zap.String("order", orderID),
				zap.Error(err))
		}
		return true, nil
	}

	// Переход не выполнен: заказ уже в целевом состоянии или переход запрещен
	order, err := f.store.OrderGet(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			f.zaplog.Warn("order not found",
				zap.String("order", orderID),
				zap.String("state", string(to)))
			return false, nil
		}
		return false, err
	}
	if order.State == to {
		return true, nil
	}
	f.zaplog.Warn("order state transition rejected",
		zap.String("order", orderID),
		zap.String("from", string(order.State)),
		zap.String("to", string(to)))
	return false, nil
}
