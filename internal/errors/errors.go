// Package errors provides custom error types for the Moneta API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
	// ErrUserBusy is returned when the per-user lock cannot be acquired
	// within the configured timeout. Retryable.
	ErrUserBusy = &AppError{Code: "USER_BUSY", Message: "Another operation is in progress for this user, try again", StatusCode: http.StatusServiceUnavailable}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Budget ledger errors.
var (
	ErrBudgetNotFound            = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrDuplicateBudgetName       = &AppError{Code: "DUPLICATE_BUDGET_NAME", Message: "An open budget with this name already exists", StatusCode: http.StatusConflict}
	ErrInsufficientResidualFunds = &AppError{Code: "INSUFFICIENT_RESIDUAL_FUNDS", Message: "The Others budget does not hold enough allocatable funds", StatusCode: http.StatusBadRequest}
	ErrAmountBelowSpent          = &AppError{Code: "AMOUNT_BELOW_SPENT", Message: "Budget amount cannot drop below what is already spent", StatusCode: http.StatusBadRequest}
	ErrAlreadyClosed             = &AppError{Code: "ALREADY_CLOSED", Message: "Budget is closed", StatusCode: http.StatusConflict}
	ErrBudgetInUse               = &AppError{Code: "BUDGET_IN_USE", Message: "Budget is referenced by existing allocations", StatusCode: http.StatusConflict}
	ErrReservedBudget            = &AppError{Code: "RESERVED_BUDGET", Message: "The Others budget cannot be modified this way", StatusCode: http.StatusBadRequest}
)

// Allocation errors.
var (
	ErrAllocationMismatch     = &AppError{Code: "ALLOCATION_MISMATCH", Message: "Split amounts must sum exactly to the transaction total", StatusCode: http.StatusBadRequest}
	ErrReferencesClosedBudget = &AppError{Code: "REFERENCES_CLOSED_BUDGET", Message: "Cannot allocate against a closed budget", StatusCode: http.StatusConflict}
)

// Transaction errors.
var (
	ErrTransactionNotFound    = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidTransactionType = &AppError{Code: "INVALID_TRANSACTION_TYPE", Message: "Unsupported transaction type", StatusCode: http.StatusBadRequest}
)

// Goal errors.
var (
	ErrGoalNotFound = &AppError{Code: "GOAL_NOT_FOUND", Message: "Goal not found", StatusCode: http.StatusNotFound}
)

// Forecast errors.
var (
	ErrForecastNotFound       = &AppError{Code: "FORECAST_NOT_FOUND", Message: "Forecast not found", StatusCode: http.StatusNotFound}
	ErrForecastAlreadyApplied = &AppError{Code: "FORECAST_ALREADY_APPLIED", Message: "Forecast has already been applied", StatusCode: http.StatusConflict}
	ErrForecastUnavailable    = &AppError{Code: "FORECAST_UNAVAILABLE", Message: "The prediction service is unavailable", StatusCode: http.StatusBadGateway}
)
