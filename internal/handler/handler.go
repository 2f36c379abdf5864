package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/paywebhook/internal/auth"
	"github.com/iurnickita/paywebhook/internal/balance"
	"github.com/iurnickita/paywebhook/internal/handler/config"
	"github.com/iurnickita/paywebhook/internal/idempotency"
	"github.com/iurnickita/paywebhook/internal/logger"
	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/notification"
	"github.com/iurnickita/paywebhook/internal/service"
	"github.com/iurnickita/paywebhook/internal/store"
)

const defaultMaxBodyBytes = 1 << 20

// OrderReader - чтение заказов для административного API
type OrderReader interface {
	OrderGet(ctx context.Context, id string) (model.Order, error)
	OrderLogGet(ctx context.Context, id string) ([]model.OrderLogEntry, error)
	PaymentGetByOrder(ctx context.Context, orderID string) ([]model.Payment, error)
}

// Serve работает до отмены ctx, затем корректно останавливает сервер
func Serve(ctx context.Context, cfg config.Config, signatureHeader string, auth auth.Auth, service service.Service, orders OrderReader, zaplog *zap.Logger) error {
	h := newHandler(cfg, signatureHeader, auth, service, orders, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zaplog.Info("server started", zap.String("addr", cfg.ServerAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zaplog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type handler struct {
	auth            auth.Auth
	service         service.Service
	orders          OrderReader
	signatureHeader string
	maxBodyBytes    int64
	zaplog          *zap.Logger
}

func newHandler(cfg config.Config, signatureHeader string, auth auth.Auth, service service.Service, orders OrderReader, zaplog *zap.Logger) *handler {
	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &handler{
		auth:            auth,
		service:         service,
		orders:          orders,
		signatureHeader: signatureHeader,
		maxBodyBytes:    maxBodyBytes,
		zaplog:          zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notifications", logger.RequestLogMdlw(h.PostNotification, h.zaplog))
	mux.HandleFunc("GET /api/orders/{order}/payments", logger.RequestLogMdlw(h.auth.Middleware(h.GetPayments), h.zaplog))

	return mux
}

func (h *handler) PostNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	test, _ := strconv.ParseBool(r.URL.Query().Get("test"))
	req := service.Request{
		Body:      body,
		Signature: r.Header.Get(h.signatureHeader),
		URL:       requestURL(r),
		Test:      test,
	}

	ack, err := h.service.Process(r.Context(), req)
	if ack {
		w.WriteHeader(http.StatusOK)
		return
	}
	switch {
	case errors.Is(err, notification.ErrDecode):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrVerification):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, idempotency.ErrInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, notification.ErrMalformedPayload), errors.Is(err, notification.ErrUnknownStatus):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		// подробности сбоя хранилища или провайдера наружу не отдаем
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// requestURL - адрес, на который провайдер отправил уведомление
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

type PaymentJSON struct {
	ReferenceID string          `json:"reference_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	IsComplete  bool            `json:"is_complete"`
	Status      string          `json:"status"`
	Method      string          `json:"method"`
	Comment     string          `json:"comment,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type OrderLogJSON struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type GetPaymentsJSONResponse struct {
	Order      string          `json:"order"`
	State      string          `json:"state"`
	Currency   string          `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	Payments   []PaymentJSON   `json:"payments"`
	Log        []OrderLogJSON  `json:"log"`
}

func (h *handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("order")

	order, err := h.orders.OrderGet(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoRows):
			http.Error(w, "order not found", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	payments, err := h.orders.PaymentGetByOrder(r.Context(), orderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := h.orders.OrderLogGet(r.Context(), orderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	responseJSON := GetPaymentsJSONResponse{
		Order:      order.ID,
		State:      string(order.State),
		Currency:   order.Currency,
		Total:      balance.Total(order),
		Paid:       balance.Paid(order, payments),
		BalanceDue: order.BalanceDue,
		Payments:   make([]PaymentJSON, 0, len(payments)),
		Log:        make([]OrderLogJSON, 0, len(entries)),
	}
	for _, payment := range payments {
		paymentJSON := PaymentJSON{
			ReferenceID: payment.ReferenceID,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			IsComplete:  payment.IsComplete,
			Status:      payment.Status,
			Method:      payment.Method,
			Comment:     payment.Comment,
			CreatedAt:   payment.CreatedAt,
		}
		if !payment.CompletedAt.IsZero() {
			completedAt := payment.CompletedAt
			paymentJSON.CompletedAt = &completedAt
		}
		responseJSON.Payments = append(responseJSON.Payments, paymentJSON)
	}
	for _, entry := range entries {
		responseJSON.Log = append(responseJSON.Log, OrderLogJSON{Message: entry.Message, CreatedAt: entry.CreatedAt})
	}

	response, err := json.Marshal(responseJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(response)
}
