package services

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ErrVersionConflict signals that a caller-supplied expected_version went stale:
// another writer committed first. Never retried server-side.
var ErrVersionConflict = errors.New("progress version conflict")

// BusinessError carries a handler-chosen status code out of a transaction.
// The transaction is rolled back; the status/body are returned to the caller.
type BusinessError struct {
	Status  int
	Code    string // short category for the "error" field
	Message string
}

func (e *BusinessError) Error() string {
	return e.Code + ": " + e.Message
}

// NewBusinessError builds a domain error with an explicit HTTP status.
func NewBusinessError(status int, code, message string) *BusinessError {
	return &BusinessError{Status: status, Code: code, Message: message}
}

// ClassifyError maps any error escaping a coordinator transaction to the
// public response shape. Raw driver errors never leak past this point.
func ClassifyError(err error) (int, fiber.Map) {
	var be *BusinessError
	switch {
	case errors.Is(err, ErrVersionConflict):
		return fiber.StatusConflict, fiber.Map{
			"error":   "version_conflict",
			"message": "progress was modified concurrently — refresh and retry",
		}
	case errors.As(err, &be):
		return be.Status, fiber.Map{
			"error":   be.Code,
			"message": be.Message,
		}
	case isDuplicateKey(err):
		return fiber.StatusConflict, fiber.Map{
			"error":   "duplicate_key",
			"message": "a conflicting record already exists",
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound, fiber.Map{
			"error":   "not_found",
			"message": "record not found",
		}
	default:
		return fiber.StatusInternalServerError, fiber.Map{
			"error":   "internal",
			"message": "transient storage failure — safe to retry with the same idempotency key",
		}
	}
}

// isDuplicateKey detects uniqueness violations across drivers. GORM translates
// them to ErrDuplicatedKey on postgres; sqlite surfaces the raw constraint text.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
