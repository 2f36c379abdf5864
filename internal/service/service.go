package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/idempotency"
	"github.com/iurnickita/paywebhook/internal/notification"
	"github.com/iurnickita/paywebhook/internal/reconciler"
	"github.com/iurnickita/paywebhook/internal/service/config"
)

// Request - входящая доставка уведомления
type Request struct {
	Body []byte
	// Signature - заголовок подписи HTTP запроса. Для формы ретранслятора
	// подпись берется из переданных в ней заголовков
	Signature string
	// URL, на который пришел запрос. Используется, если notification_url не задан
	URL string
	// Test - параметр запроса test=true
	Test bool
}

type Service interface {
	// Process - true: доставку нужно подтвердить, false: провайдер должен повторить
	Process(ctx context.Context, req Request) (bool, error)
}

var (
	ErrVerification = errors.New("notification signature verification failed")
	ErrNoSecretKey  = errors.New("gateway secret key is not configured")
)

type service struct {
	cfg        config.Config
	decoder    *notification.Decoder
	guard      idempotency.Guard
	reconciler reconciler.Reconciler
	zaplog     *zap.Logger
}

func NewService(cfg config.Config, guard idempotency.Guard, reconciler reconciler.Reconciler, zaplog *zap.Logger) (Service, error) {
	if cfg.SecretKey == "" && !cfg.TestMode {
		return nil, ErrNoSecretKey
	}
	if cfg.TestMode {
		zaplog.Warn("gateway test mode is enabled: signature verification can be bypassed")
	}

	service := service{
		cfg:        cfg,
		decoder:    notification.NewDecoder(cfg.SignatureHeader),
		guard:      guard,
		reconciler: reconciler,
		zaplog:     zaplog}

	return &service, nil
}

func (service *service) Process(ctx context.Context, req Request) (bool, error) {
	envelope, err := service.decoder.Decode(req.Body)
	if err != nil {
		service.zaplog.Warn("notification rejected", zap.Error(err))
		return false, err
	}
	zaplog := service.zaplog.With(
		zap.String("event_id", envelope.ID),
		zap.String("event_type", envelope.Type))

	// До резервирования event_id: неподписанный запрос не должен занимать идентификатор
	err = service.verify(zaplog, envelope, req)
	if err != nil {
		return false, err
	}

	first, err := service.guard.IsFirstDelivery(ctx, envelope.ID, envelope.Type)
	if err != nil {
		if errors.Is(err, idempotency.ErrInFlight) {
			zaplog.Info("notification is in flight, delivery rejected")
		}
		return false, err
	}
	if !first {
		zaplog.Info("duplicate delivery acknowledged")
		return true, nil
	}

	ack, err := service.handle(ctx, envelope)

	// Отметка о результате пишется, даже если провайдер уже разорвал соединение
	markCtx := context.WithoutCancel(ctx)
	if !ack {
		if err != nil {
			zaplog.Warn("notification not acknowledged", zap.Error(err))
		}
		if rerr := service.guard.Release(markCtx, envelope.ID); rerr != nil {
			zaplog.Error("notification release failed", zap.Error(rerr))
		}
		return false, err
	}

	err = service.guard.Done(markCtx, envelope.ID)
	if err != nil {
		// Сверка идемпотентна: снимаем резерв и просим повторную доставку
		zaplog.Error("notification done mark failed", zap.Error(err))
		if rerr := service.guard.Release(markCtx, envelope.ID); rerr != nil {
			zaplog.Error("notification release failed", zap.Error(rerr))
		}
		return false, fmt.Errorf("mark notification %s processed: %w", envelope.ID, err)
	}
	zaplog.Info("notification processed")
	return true, nil
}

func (service *service) handle(ctx context.Context, envelope notification.Envelope) (bool, error) {
	event, err := notification.ParseEvent(envelope)
	if err != nil {
		return false, err
	}
	return service.reconciler.Reconcile(ctx, envelope, event)
}

func (service *service) verify(zaplog *zap.Logger, envelope notification.Envelope, req Request) error {
	if service.cfg.TestMode && req.Test {
		zaplog.Warn("signature verification bypassed", zap.Bool("signature_bypass", true))
		return nil
	}

	signature := envelope.SignatureHeader
	if signature == "" {
		signature = req.Signature
	}
	notificationURL := service.cfg.NotificationURL
	if notificationURL == "" {
		notificationURL = req.URL
	}

	if !notification.Verify(envelope.RawBody, signature, notificationURL, service.cfg.GetSecretKey()) {
		zaplog.Warn("notification signature mismatch",
			zap.String("security", "signature_mismatch"),
			zap.Bool("signature_present", signature != ""),
			zap.String("notification_url", notificationURL))
		return ErrVerification
	}
	return nil
}
