package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/product-estimator/estimator/internal/gateway"
)

var (
	ErrDuplicate          = errors.New("product already in room")
	ErrPrimaryConflict    = errors.New("room already has a primary category product")
	ErrValidation         = errors.New("validation failed")
	ErrCriticalData       = errors.New("product data unavailable")
	ErrNotFound           = errors.New("not found")
	ErrVariationRequired  = errors.New("variation selection required")
	ErrVariationCancelled = errors.New("variation selection cancelled")
	ErrBusy               = errors.New("operation already in progress")
)

// DuplicateError is an expected outcome: the product is already in the room.
type DuplicateError struct {
	EstimateID string
	RoomID     string
	ProductID  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("product %s is already in room %s", e.ProductID, e.RoomID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Data() map[string]any {
	return map[string]any{
		"duplicate":   true,
		"estimate_id": e.EstimateID,
		"room_id":     e.RoomID,
		"product_id":  e.ProductID,
	}
}

// PrimaryConflictError is an expected outcome carrying both products so the
// caller can offer to replace the existing one.
type PrimaryConflictError struct {
	EstimateID          string
	RoomID              string
	ExistingProductID   string
	ExistingProductName string
	NewProductID        string
	NewProductName      string
}

func (e *PrimaryConflictError) Error() string {
	return fmt.Sprintf("room %s already has primary category product %s", e.RoomID, e.ExistingProductID)
}

func (e *PrimaryConflictError) Is(target error) bool {
	return target == ErrPrimaryConflict
}

func (e *PrimaryConflictError) Data() map[string]any {
	return map[string]any{
		"primary_conflict":      true,
		"estimate_id":           e.EstimateID,
		"room_id":               e.RoomID,
		"existing_product_id":   e.ExistingProductID,
		"existing_product_name": e.ExistingProductName,
		"new_product_id":        e.NewProductID,
		"new_product_name":      e.NewProductName,
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Data() map[string]any {
	return map[string]any{"fields": e.Fields}
}

// CriticalDataError aborts a mutation before any local write.
type CriticalDataError struct {
	ProductID string
	Reason    string
	Err       error
}

func (e *CriticalDataError) Error() string {
	msg := fmt.Sprintf("product data for %s unavailable", e.ProductID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CriticalDataError) Unwrap() error {
	return e.Err
}

func (e *CriticalDataError) Is(target error) bool {
	return target == ErrCriticalData
}

func (e *CriticalDataError) Data() map[string]any {
	return map[string]any{"product_id": e.ProductID, "reason": e.Reason}
}

// VariationRequiredError is returned when a variable product reaches the
// protocol without a chosen variation and no picker is configured.
type VariationRequiredError struct {
	ProductID  string
	Variations []gateway.Variation
}

func (e *VariationRequiredError) Error() string {
	return fmt.Sprintf("product %s requires a variation (%d available)", e.ProductID, len(e.Variations))
}

func (e *VariationRequiredError) Is(target error) bool {
	return target == ErrVariationRequired
}

func (e *VariationRequiredError) Data() map[string]any {
	return map[string]any{"product_id": e.ProductID, "variations": e.Variations}
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrPrimaryConflict):
		return "primary_conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCriticalData):
		return "critical_data"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrVariationRequired), errors.Is(err, ErrVariationCancelled):
		return "variation"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
