package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/paywebhook/internal/balance"
	"github.com/iurnickita/paywebhook/internal/model"
	"github.com/iurnickita/paywebhook/internal/store/config"
)

type Store interface {
	OrderGet(ctx context.Context, id string) (model.Order, error)
	OrderPost(ctx context.Context, order model.Order) error
	OrderTransition(ctx context.Context, id string, to model.OrderState, from ...model.OrderState) (bool, error)
	OrderLog(ctx context.Context, id string, message string) error
	OrderLogGet(ctx context.Context, id string) ([]model.OrderLogEntry, error)
	PaymentGetByReference(ctx context.Context, referenceID string) (model.Payment, error)
	PaymentGetByOrder(ctx context.Context, orderID string) ([]model.Payment, error)
	PaymentSave(ctx context.Context, payment *model.Payment) error
	PaymentComplete(ctx context.Context, referenceID string, status string, at time.Time) (bool, error)
	NotificationReserve(ctx context.Context, notification model.Notification) (bool, error)
	NotificationGet(ctx context.Context, eventID string) (model.Notification, error)
	NotificationDone(ctx context.Context, eventID string) error
	NotificationRelease(ctx context.Context, eventID string) error
	Close() error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
)

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// Таблица заказов
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS orders (" +
			" id VARCHAR (64) PRIMARY KEY," +
			" state VARCHAR (16) NOT NULL," +
			" currency VARCHAR (3) NOT NULL," +
			" misc_charges NUMERIC (18, 4) NOT NULL DEFAULT 0," +
			" created_at TIMESTAMP NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Позиции заказа
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS order_items (" +
			" order_id VARCHAR (64) REFERENCES orders (id)," +
			" line SERIAL," +
			" sku VARCHAR (64) NOT NULL," +
			" quantity INTEGER NOT NULL," +
			" price NUMERIC (18, 4) NOT NULL," +
			" PRIMARY KEY (order_id, line)" +
			" );")
	if err != nil {
		return nil, err
	}

	// Платежи. reference_id уникален: не более одного платежа на идентификатор провайдера.
	// Возвраты хранятся здесь же с отрицательной суммой
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS payments (" +
			" id UUID PRIMARY KEY," +
			" reference_id VARCHAR (128) UNIQUE NOT NULL," +
			" order_id VARCHAR (64) NOT NULL," +
			" amount NUMERIC (18, 4) NOT NULL," +
			" currency VARCHAR (3) NOT NULL," +
			" is_complete BOOLEAN NOT NULL DEFAULT FALSE," +
			" status VARCHAR (32) NOT NULL," +
			" method VARCHAR (32) NOT NULL," +
			" comment TEXT NOT NULL DEFAULT ''," +
			" created_at TIMESTAMP NOT NULL," +
			" completed_at TIMESTAMP" +
			" );")
	if err != nil {
		return nil, err
	}

	// Принятые уведомления. Запись создается до обработки (state = processing)
	// и удаляется, если обработка не удалась. Просроченный резерв забирает повторная доставка
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS notification (" +
			" event_id VARCHAR (128) PRIMARY KEY," +
			" event_type VARCHAR (64) NOT NULL," +
			" state VARCHAR (16) NOT NULL," +
			" received_at TIMESTAMP NOT NULL," +
			" expires_at TIMESTAMP" +
			" );")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("ALTER TABLE notification ADD COLUMN IF NOT EXISTS expires_at TIMESTAMP;")
	if err != nil {
		return nil, err
	}

	// Журнал заказа
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS order_log (" +
			" order_id VARCHAR (64) NOT NULL," +
			" entry SERIAL," +
			" message TEXT NOT NULL," +
			" created_at TIMESTAMP NOT NULL," +
			" PRIMARY KEY (order_id, entry)" +
			" );")
	if err != nil {
		return nil, err
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) Close() error {
	return store.database.Close()
}

func (store *store) OrderGet(ctx context.Context, id string) (model.Order, error) {
	var order model.Order
	row := store.database.QueryRowContext(ctx,
		"SELECT id, state, currency, misc_charges, created_at"+
			" FROM orders"+
			" WHERE id = $1",
		id)
	err := row.Scan(&order.ID,
		&order.State,
		&order.Currency,
		&order.MiscCharges,
		&order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}

	// Позиции
	rows, err := store.database.QueryContext(ctx,
		"SELECT sku, quantity, price"+
			" FROM order_items"+
			" WHERE order_id = $1"+
			" ORDER BY line",
		id)
	if err != nil {
		return model.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(&item.SKU, &item.Quantity, &item.Price)
		if err != nil {
			return model.Order{}, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return model.Order{}, err
	}

	// Остаток к оплате
	payments, err := store.PaymentGetByOrder(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	order.BalanceDue = balance.Due(order, payments)

	return order, nil
}

func (store *store) OrderPost(ctx context.Context, order model.Order) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if order.State == "" {
		order.State = model.OrderStateNew
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (id, state, currency, misc_charges, created_at)"+
			" VALUES ($1, $2, $3, $4, $5)",
		order.ID,
		order.State,
		order.Currency,
		order.MiscCharges,
		order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, sku, quantity, price)"+
				" VALUES ($1, $2, $3, $4)",
			order.ID,
			item.SKU,
			item.Quantity,
			item.Price)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (store *store) OrderTransition(ctx context.Context, id string, to model.OrderState, from ...model.OrderState) (bool, error) {
	// Переход выполняется только из разрешенных состояний, одним UPDATE
	args := []any{to, id}
	placeholders := make([]string, 0, len(from))
	for _, state := range from {
		args = append(args, state)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := "UPDATE orders SET state = $1 WHERE id = $2"
	if len(placeholders) > 0 {
		query += " AND state IN (" + strings.Join(placeholders, ", ") + ")"
	}

	result, err := store.database.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (store *store) OrderLog(ctx context.Context, id string, message string) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO order_log (order_id, message, created_at)"+
			" VALUES ($1, $2, $3)",
		id,
		message,
		time.Now())
	return err
}

func (store *store) OrderLogGet(ctx context.Context, id string) ([]model.OrderLogEntry, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT order_id, message, created_at"+
			" FROM order_log"+
			" WHERE order_id = $1"+
			" ORDER BY entry",
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.OrderLogEntry
	for rows.Next() {
		var entry model.OrderLogEntry
		err := rows.Scan(&entry.OrderID, &entry.Message, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

const paymentColumns = "id, reference_id, order_id, amount, currency, is_complete, status, method, comment, created_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (model.Payment, error) {
	var payment model.Payment
	var completedAt sql.NullTime
	err := row.Scan(&payment.ID,
		&payment.ReferenceID,
		&payment.OrderID,
		&payment.Amount,
		&payment.Currency,
		&payment.IsComplete,
		&payment.Status,
		&payment.Method,
		&payment.Comment,
		&payment.CreatedAt,
		&completedAt)
	if err != nil {
		return model.Payment{}, err
	}
	if completedAt.Valid {
		payment.CompletedAt = completedAt.Time
	}
	return payment, nil
}

// PaymentGetByReference возвращает сохраненный платеж либо новый (model.NewPayment)
func (store *store) PaymentGetByReference(ctx context.Context, referenceID string) (model.Payment, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+paymentColumns+
			" FROM payments"+
			" WHERE reference_id = $1",
		referenceID)
	payment, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.NewPayment(referenceID), nil
		}
		return model.Payment{}, err
	}
	return payment, nil
}

func (store *store) PaymentGetByOrder(ctx context.Context, orderID string) ([]model.Payment, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+paymentColumns+
			" FROM payments"+
			" WHERE order_id = $1"+
			" ORDER BY created_at",
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []model.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// PaymentSave создает новый платеж или обновляет существующий.
// Повторное создание с тем же reference_id - ErrAlreadyExists.
// Отметка is_complete при обновлении не снимается
func (store *store) PaymentSave(ctx context.Context, payment *model.Payment) error {
	var completedAt sql.NullTime
	if payment.IsComplete {
		completedAt = sql.NullTime{Time: payment.CompletedAt, Valid: !payment.CompletedAt.IsZero()}
	}

	if payment.IsNew() {
		id := uuid.NewString()
		createdAt := time.Now()
		_, err := store.database.ExecContext(ctx,
			"INSERT INTO payments ("+paymentColumns+")"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
			id,
			payment.ReferenceID,
			payment.OrderID,
			payment.Amount,
			payment.Currency,
			payment.IsComplete,
			payment.Status,
			payment.Method,
			payment.Comment,
			createdAt,
			completedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return err
		}
		payment.ID = id
		payment.CreatedAt = createdAt
		return nil
	}

	_, err := store.database.ExecContext(ctx,
		"UPDATE payments"+
			" SET order_id = $1,"+
			"     amount = $2,"+
			"     currency = $3,"+
			"     is_complete = is_complete OR $4,"+
			"     status = $5,"+
			"     method = $6,"+
			"     comment = $7,"+
			"     completed_at = COALESCE(completed_at, $8)"+
			" WHERE id = $9",
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.IsComplete,
		payment.Status,
		payment.Method,
		payment.Comment,
		completedAt,
		payment.ID)
	return err
}

// PaymentComplete атомарно переводит платеж в завершенный.
// false - платеж не найден или уже был завершен
func (store *store) PaymentComplete(ctx context.Context, referenceID string, status string, at time.Time) (bool, error) {
	result, err := store.database.ExecContext(ctx,
		"UPDATE payments"+
			" SET is_complete = TRUE,"+
			"     status = $1,"+
			"     completed_at = $2"+
			" WHERE reference_id = $3"+
			"   AND NOT is_complete",
		status,
		at,
		referenceID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// NotificationReserve - false, если уведомление с таким event_id уже записано
// и его резерв не просрочен
func (store *store) NotificationReserve(ctx context.Context, notification model.Notification) (bool, error) {
	var expiresAt sql.NullTime
	if !notification.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: notification.ExpiresAt, Valid: true}
	}
	result, err := store.database.ExecContext(ctx,
		"INSERT INTO notification (event_id, event_type, state, received_at, expires_at)"+
			" VALUES ($1, $2, $3, $4, $5)"+
			" ON CONFLICT (event_id) DO UPDATE SET"+
			" event_type = EXCLUDED.event_type,"+
			" received_at = EXCLUDED.received_at,"+
			" expires_at = EXCLUDED.expires_at"+
			" WHERE notification.state = $3"+
			" AND notification.expires_at < EXCLUDED.received_at",
		notification.EventID,
		notification.EventType,
		model.NotificationStateProcessing,
		notification.ReceivedAt,
		expiresAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (store *store) NotificationGet(ctx context.Context, eventID string) (model.Notification, error) {
	var notification model.Notification
	var expiresAt sql.NullTime
	row := store.database.QueryRowContext(ctx,
		"SELECT event_id, event_type, state, received_at, expires_at"+
			" FROM notification"+
			" WHERE event_id = $1",
		eventID)
	err := row.Scan(&notification.EventID,
		&notification.EventType,
		&notification.State,
		&notification.ReceivedAt,
		&expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Notification{}, ErrNoRows
		}
		return model.Notification{}, err
	}
	if expiresAt.Valid {
		notification.ExpiresAt = expiresAt.Time
	}
	return notification, nil
}

func (store *store) NotificationDone(ctx context.Context, eventID string) error {
	_, err := store.database.ExecContext(ctx,
		"UPDATE notification SET state = $1 WHERE event_id = $2",
		model.NotificationStateProcessed,
		eventID)
	return err
}

func (store *store) NotificationRelease(ctx context.Context, eventID string) error {
	_, err := store.database.ExecContext(ctx,
		"DELETE FROM notification WHERE event_id = $1 AND state = $2",
		eventID,
		model.NotificationStateProcessing)
	return err
}

// Проверка: уже существует
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
