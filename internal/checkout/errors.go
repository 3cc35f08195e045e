package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidTransition is returned for a step change the wizard does not allow.
	ErrInvalidTransition = errors.New("checkout: invalid step transition")
	// ErrSubmitInProgress is returned when the session already has an order placement running.
	ErrSubmitInProgress = errors.New("checkout: order submission already in progress")
	// ErrStockAdjusted is returned when placement lowered or dropped cart lines
	// to match their stock; the shopper reviews the new total before retrying.
	ErrStockAdjusted = errors.New("checkout: cart adjusted to available stock")
)

// ValidationError carries per-field messages keyed by json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "checkout: invalid fields: " + strings.Join(names, ", ")
}

// Submission stages
const (
	StageCreateOrder       = "create_order"
	StageCreatePaymentLink = "create_payment_link"
)

// SubmitError is a failed order placement. OrderID is set when the order was
// created before the failure.
type SubmitError struct {
	Stage   string
	Message string // user facing
	OrderID string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("checkout: %s failed: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("checkout: %s failed: %v", e.Stage, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
