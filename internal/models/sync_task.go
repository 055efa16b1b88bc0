package models

import "time"

// Outbox task states.
const (
	TaskPending   = "pending"
	TaskRetry     = "retry"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Side task types.
const (
	SideTaskAudit         = "audit"
	SideTaskPayment       = "payment_ledger"
	SideTaskPaymentStatus = "payment_status"
	SideTaskNotify        = "notify"
)

// SyncTask is a persisted side-channel job: audit write, ledger write or staff notification.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// SideTask is what the engine hands to the outbox. Exactly one of the
// pointer fields is expected to be set, matching Type.
type SideTask struct {
	Type         string        `json:"type"`
	BookingID    int64         `json:"booking_id"`
	Audit        *AuditEntry   `json:"audit,omitempty"`
	Payment      *Payment      `json:"payment,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}
