package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table, and as
// JSON in Redis.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key" json:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status" json:"status"`
	Reference      string    `dynamodbav:"reference,omitempty" json:"reference,omitempty"`             // e.g. gateway transaction ref
	ResponseBody   string    `dynamodbav:"response_body,omitempty" json:"response_body,omitempty"`     // small JSON outcome
	ResponseStatus int       `dynamodbav:"response_status,omitempty" json:"response_status,omitempty"` // e.g. 200, 402
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at" json:"expires_at,omitempty"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
}
