package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"minicrm/internal/domain"
	"minicrm/internal/store"
)

// DB is the subset of pgxpool.Pool the store needs. Kept as an interface so
// tests can substitute a pgxmock pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type Store struct {
	DB DB
}

func New(db DB) *Store { return &Store{DB: db} }

// wrapErr normalizes driver errors into the domain taxonomy. Missing tables
// (undefined_table) and timeouts are setup/availability problems, not data
// problems; FK violations mean the referenced record does not exist.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrStorageUnavailable, pgErr.Message)
		case "23503":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) InsertCustomer(ctx context.Context, in store.CustomerInsert) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, total_spending, last_visit_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING customer_id
	`, in.Name, in.Email, in.Phone, in.TotalSpending, in.LastVisitDate, in.Now).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert customer", err)
	}
	return id, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT customer_id, name, email, phone, total_spending, last_visit_date, created_at
		FROM customers ORDER BY customer_id
	`)
	if err != nil {
		return nil, wrapErr("list customers", err)
	}
	defer rows.Close()

	out := []store.Customer{}
	for rows.Next() {
		var c store.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.TotalSpending, &c.LastVisitDate, &c.CreatedAt); err != nil {
			return nil, wrapErr("list customers", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("list customers", rows.Err())
}

// DeleteCustomer removes a customer and all dependent rows (receipts, log
// entries, memberships, orders) in one transaction, mirroring relational
// delete order.
func (s *Store) DeleteCustomer(ctx context.Context, customerID int64) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, wrapErr("delete customer", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		`DELETE FROM delivery_receipts WHERE log_id IN (SELECT log_id FROM communications_log WHERE customer_id=$1)`,
		`DELETE FROM communications_log WHERE customer_id=$1`,
		`DELETE FROM audience_segment_customers WHERE customer_id=$1`,
		`DELETE FROM orders WHERE customer_id=$1`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(ctx, q, customerID); err != nil {
			return false, wrapErr("delete customer", err)
		}
	}

	ct, err := tx.Exec(ctx, `DELETE FROM customers WHERE customer_id=$1`, customerID)
	if err != nil {
		return false, wrapErr("delete customer", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, wrapErr("delete customer", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) InsertOrder(ctx context.Context, in store.OrderInsert) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO orders (customer_id, order_date, order_amount)
		VALUES ($1,$2,$3)
		RETURNING order_id
	`, in.CustomerID, in.OrderDate, in.OrderAmount).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert order", err)
	}
	return id, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]store.Order, error) {
	return s.queryOrders(ctx, `SELECT order_id, customer_id, order_date, order_amount FROM orders ORDER BY order_id`)
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]store.Order, error) {
	return s.queryOrders(ctx, `SELECT order_id, customer_id, order_date, order_amount FROM orders WHERE customer_id=$1 ORDER BY order_id`, customerID)
}

func (s *Store) queryOrders(ctx context.Context, q string, args ...any) ([]store.Order, error) {
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	defer rows.Close()

	out := []store.Order{}
	for rows.Next() {
		var o store.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.OrderDate, &o.OrderAmount); err != nil {
			return nil, wrapErr("list orders", err)
		}
		out = append(out, o)
	}
	return out, wrapErr("list orders", rows.Err())
}

// CountAudience counts customers matching a predicate built by the segment
// package. whereSQL contains only allow-listed column and operator tokens.
func (s *Store) CountAudience(ctx context.Context, whereSQL string, args []any) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE `+whereSQL, args...).Scan(&n)
	if err != nil {
		return 0, wrapErr("count audience", err)
	}
	return n, nil
}

func (s *Store) InsertSegment(ctx context.Context, name string, conditions []domain.Condition, now time.Time) (int64, error) {
	b, _ := json.Marshal(conditions)
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO segments (name, conditions, created_at)
		VALUES ($1,$2,$3)
		RETURNING segment_id
	`, name, b, now).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert segment", err)
	}
	return id, nil
}

func (s *Store) GetSegment(ctx context.Context, segmentID int64) (store.SegmentRecord, bool, error) {
	var rec store.SegmentRecord
	var condJSON []byte
	row := s.DB.QueryRow(ctx, `
		SELECT segment_id, name, conditions, created_at FROM segments WHERE segment_id=$1
	`, segmentID)
	err := row.Scan(&rec.ID, &rec.Name, &condJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SegmentRecord{}, false, nil
		}
		return store.SegmentRecord{}, false, wrapErr("get segment", err)
	}
	if err := json.Unmarshal(condJSON, &rec.Conditions); err != nil {
		return store.SegmentRecord{}, false, wrapErr("get segment", err)
	}
	return rec, true, nil
}

func (s *Store) AssignToSegment(ctx context.Context, segmentID, customerID int64) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audience_segment_customers (segment_id, customer_id)
		VALUES ($1,$2)
		ON CONFLICT (segment_id, customer_id) DO NOTHING
	`, segmentID, customerID)
	return wrapErr("assign to segment", err)
}

func (s *Store) SegmentMembers(ctx context.Context, segmentID int64) ([]store.Customer, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT c.customer_id, c.name, c.email, c.phone, c.total_spending, c.last_visit_date, c.created_at
		FROM customers c
		JOIN audience_segment_customers m ON m.customer_id = c.customer_id
		WHERE m.segment_id = $1
		ORDER BY c.customer_id
	`, segmentID)
	if err != nil {
		return nil, wrapErr("segment members", err)
	}
	defer rows.Close()

	out := []store.Customer{}
	for rows.Next() {
		var c store.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.TotalSpending, &c.LastVisitDate, &c.CreatedAt); err != nil {
			return nil, wrapErr("segment members", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("segment members", rows.Err())
}

func (s *Store) InsertLogEntry(ctx context.Context, in store.LogInsert) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO communications_log (segment_id, customer_id, dispatch_id, message, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING log_id
	`, in.SegmentID, in.CustomerID, nullIfEmpty(in.DispatchID), in.Message, in.Status).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert log entry", err)
	}
	return id, nil
}

// InsertDispatchBatch writes the batch's log rows and delivery receipts in a
// single transaction and correlates them by the identifiers the database
// actually assigned, not by arithmetic from a starting id. An interleaving
// writer on communications_log therefore cannot corrupt the pairing, and on
// any mismatch the whole batch rolls back.
func (s *Store) InsertDispatchBatch(ctx context.Context, in store.DispatchBatch) ([]int64, error) {
	n := len(in.Messages)
	customerIDs := make([]int64, n)
	messages := make([]string, n)
	statuses := make([]string, n)
	for i, m := range in.Messages {
		customerIDs[i] = m.CustomerID
		messages[i] = m.Message
		statuses[i] = string(m.ReceiptStatus)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, wrapErr("dispatch batch", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		INSERT INTO communications_log (segment_id, customer_id, dispatch_id, message, status, timestamp)
		SELECT $1, t.customer_id, $2, t.message, 'SENT', $5
		FROM unnest($3::bigint[], $4::text[]) WITH ORDINALITY AS t(customer_id, message, ord)
		ORDER BY t.ord
		RETURNING log_id
	`, in.SegmentID, in.DispatchID, customerIDs, messages, in.Now)
	if err != nil {
		return nil, wrapErr("dispatch batch insert logs", err)
	}

	logIDs := make([]int64, 0, n)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapErr("dispatch batch insert logs", err)
		}
		logIDs = append(logIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("dispatch batch insert logs", err)
	}

	if len(logIDs) != n {
		return nil, fmt.Errorf("dispatch batch: %w: %d log ids returned for %d messages",
			domain.ErrDispatchIntegrity, len(logIDs), n)
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO delivery_receipts (log_id, status, timestamp)
		SELECT r.log_id, r.status, $3
		FROM unnest($1::bigint[], $2::text[]) AS r(log_id, status)
	`, logIDs, statuses, in.Now)
	if err != nil {
		return nil, wrapErr("dispatch batch insert receipts", err)
	}
	if ct.RowsAffected() != int64(n) {
		return nil, fmt.Errorf("dispatch batch: %w: %d receipts written for %d messages",
			domain.ErrDispatchIntegrity, ct.RowsAffected(), n)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("dispatch batch", err)
	}
	return logIDs, nil
}

func (s *Store) CampaignHistory(ctx context.Context, segmentID int64) ([]store.HistoryEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT cl.log_id, cl.message, cl.status, cl.timestamp,
		       COUNT(dr.receipt_id) AS total_messages,
		       COUNT(dr.receipt_id) FILTER (WHERE dr.status = 'SENT') AS sent_messages,
		       COUNT(dr.receipt_id) FILTER (WHERE dr.status = 'FAILED') AS failed_messages
		FROM communications_log cl
		LEFT JOIN delivery_receipts dr ON dr.log_id = cl.log_id
		WHERE cl.segment_id = $1
		GROUP BY cl.log_id, cl.message, cl.status, cl.timestamp
		ORDER BY cl.timestamp DESC, cl.log_id DESC
	`, segmentID)
	if err != nil {
		return nil, wrapErr("campaign history", err)
	}
	defer rows.Close()

	out := []store.HistoryEntry{}
	for rows.Next() {
		var e store.HistoryEntry
		if err := rows.Scan(&e.LogID, &e.Message, &e.Status, &e.Timestamp, &e.TotalMessages, &e.SentMessages, &e.FailedMessages); err != nil {
			return nil, wrapErr("campaign history", err)
		}
		out = append(out, e)
	}
	return out, wrapErr("campaign history", rows.Err())
}

// UpdateDeliveryOutcome applies a late status correction from the delivery
// channel to both the receipt and its log entry.
func (s *Store) UpdateDeliveryOutcome(ctx context.Context, in store.DeliveryOutcomeUpdate) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, wrapErr("update delivery outcome", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE delivery_receipts SET status=$2, timestamp=$3 WHERE log_id=$1
	`, in.LogID, string(in.Status), in.Now); err != nil {
		return false, wrapErr("update delivery outcome", err)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE communications_log SET status=$2 WHERE log_id=$1
	`, in.LogID, string(in.Status))
	if err != nil {
		return false, wrapErr("update delivery outcome", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, wrapErr("update delivery outcome", err)
	}
	return ct.RowsAffected() > 0, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
