package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken   ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken   ErrorCode = "EXPIRED_TOKEN"
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"

	// Key material errors
	ErrCodeInvalidKeyMaterial  ErrorCode = "INVALID_KEY_MATERIAL"
	ErrCodeKeyNotFound         ErrorCode = "KEY_NOT_FOUND"
	ErrCodeKeyDecryptionFailed ErrorCode = "KEY_DECRYPTION_FAILED"

	// Block cipher / integrity errors
	ErrCodeDecryptionFailed ErrorCode = "DECRYPTION_FAILED"
	ErrCodeChainBroken      ErrorCode = "CHAIN_BROKEN"
	ErrCodeHashMismatch     ErrorCode = "HASH_MISMATCH"
	ErrCodeCorruptBlock     ErrorCode = "CORRUPT_BLOCK"

	// Tampering / trust errors
	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrCodeSecurityBreach   ErrorCode = "SECURITY_BREACH_DETECTED"

	// Concurrent editing errors (expected, recoverable)
	ErrCodeOldVersionBlock ErrorCode = "OLD_VERSION_BLOCK"
	ErrCodeBlockLocked     ErrorCode = "BLOCK_LOCKED"
	ErrCodeForbiddenAccess ErrorCode = "FORBIDDEN_ACCESS"

	// Not found errors
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeBlockNotFound    ErrorCode = "BLOCK_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors

func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Authentication errors

func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// Key material errors

func InvalidKeyMaterialError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidKeyMaterial, message, http.StatusBadRequest)
}

// KeyNotFoundError signals that no document key record exists for the epoch a
// block version was encrypted under. The version cannot be verified without it.
func KeyNotFoundError(epoch int64) *AppError {
	return NewWithStatus(ErrCodeKeyNotFound, fmt.Sprintf("No document key record for epoch %d", epoch), http.StatusConflict)
}

func KeyDecryptionFailedError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeKeyDecryptionFailed,
		Message:    "Failed to decrypt document root key",
		StatusCode: http.StatusConflict,
		Err:        err,
	}
}

// Block cipher / integrity errors

func DecryptionFailedError() *AppError {
	return NewWithStatus(ErrCodeDecryptionFailed, "Block decryption failed: authentication tag mismatch", http.StatusConflict)
}

// ChainBrokenError identifies the block version whose prevHash does not match
// the hash of the preceding version.
func ChainBrokenError(blockID string, version int64) *AppError {
	return NewWithStatus(ErrCodeChainBroken,
		fmt.Sprintf("Hash chain broken at block %s version %d", blockID, version), http.StatusConflict)
}

// HashMismatchError identifies the block version whose stored hash does not
// match the recomputed value.
func HashMismatchError(blockID string, version int64) *AppError {
	return NewWithStatus(ErrCodeHashMismatch,
		fmt.Sprintf("Hash mismatch at block %s version %d", blockID, version), http.StatusConflict)
}

func CorruptBlockError(blockID string) *AppError {
	return NewWithStatus(ErrCodeCorruptBlock, fmt.Sprintf("Block %s failed integrity check", blockID), http.StatusConflict)
}

// Tampering / trust errors

func SignatureInvalidError(message string) *AppError {
	return NewWithStatus(ErrCodeSignatureInvalid, message, http.StatusConflict)
}

func SecurityBreachError(message string) *AppError {
	return NewWithStatus(ErrCodeSecurityBreach, message, http.StatusConflict)
}

// Concurrent editing errors

func OldVersionBlockError(incoming, latest int64) *AppError {
	return NewWithStatus(ErrCodeOldVersionBlock,
		fmt.Sprintf("Stale block version %d (latest is %d)", incoming, latest), http.StatusConflict)
}

// BlockLockedError reports the current lock owner so the client can surface
// who is editing. Informational only; the lock service enforces exclusion.
func BlockLockedError(ownerID string) *AppError {
	e := NewWithStatus(ErrCodeBlockLocked, "Block is locked by another editor", http.StatusConflict)
	return e.WithDetails(map[string]string{"locked_by": ownerID})
}

func ForbiddenAccessError(message string) *AppError {
	return NewWithStatus(ErrCodeForbiddenAccess, message, http.StatusForbidden)
}

// Not found errors

func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func UserNotFoundError() *AppError {
	return NewWithStatus(ErrCodeUserNotFound, "User not found", http.StatusNotFound)
}

func DocumentNotFoundError() *AppError {
	return NewWithStatus(ErrCodeDocumentNotFound, "Document not found", http.StatusNotFound)
}

func BlockNotFoundError() *AppError {
	return NewWithStatus(ErrCodeBlockNotFound, "Block not found", http.StatusNotFound)
}

// Conflict errors

func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// Internal errors

func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeDatabase,
		Message:    "Database error",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func StorageError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeStorage,
		Message:    "Storage error",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError(err.Error())
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal for plain errors
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
