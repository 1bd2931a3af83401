package store

import (
	"time"

	"minicrm/internal/domain"
)

type Customer struct {
	ID            int64     `json:"customer_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	TotalSpending float64   `json:"total_spending"`
	LastVisitDate time.Time `json:"last_visit_date"`
	CreatedAt     time.Time `json:"created_at"`
}

type CustomerInsert struct {
	Name          string
	Email         string
	Phone         string
	TotalSpending float64
	LastVisitDate time.Time
	Now           time.Time
}

type Order struct {
	ID          int64     `json:"order_id"`
	CustomerID  int64     `json:"customer_id"`
	OrderDate   time.Time `json:"order_date"`
	OrderAmount float64   `json:"order_amount"`
}

type OrderInsert struct {
	CustomerID  int64
	OrderDate   time.Time
	OrderAmount float64
}

// SegmentRecord is a persisted segment definition. Conditions round-trip
// through jsonb verbatim so they can be re-evaluated with identical semantics.
type SegmentRecord struct {
	ID         int64              `json:"segmentId"`
	Name       string             `json:"name"`
	Conditions []domain.Condition `json:"conditions"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type LogInsert struct {
	SegmentID  int64
	CustomerID int64
	DispatchID string
	Message    string
	Status     string
}

// DispatchMessage is one rendered message of a dispatch batch plus the
// delivery outcome drawn for it.
type DispatchMessage struct {
	CustomerID    int64
	Message       string
	ReceiptStatus domain.DeliveryStatus
}

type DispatchBatch struct {
	SegmentID  int64
	DispatchID string
	Messages   []DispatchMessage
	Now        time.Time
}

type HistoryEntry struct {
	LogID          int64     `json:"logId"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	TotalMessages  int64     `json:"totalMessages"`
	SentMessages   int64     `json:"sentMessages"`
	FailedMessages int64     `json:"failedMessages"`
}

type DeliveryOutcomeUpdate struct {
	LogID  int64
	Status domain.DeliveryStatus
	Now    time.Time
}
