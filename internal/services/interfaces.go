package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"moneta/internal/models"
	"moneta/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string, initialBalance decimal.Decimal) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	UpdateProfile(userID string, firstName, lastName *string, balance *decimal.Decimal) (*models.User, error)
	StoreRefreshTokenHash(userID string, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// BudgetPatch holds the optional field updates for a budget. Nil fields
// are left unchanged.
type BudgetPatch struct {
	Name      *string
	Amount    *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
}

// LedgerServicer defines the contract for the budget ledger: budget
// lifecycle, the Others residual invariant, and the raw spent/earned
// mutation primitives used by the allocation splitter.
//
// The tx-taking primitives (AdjustAmount, RecordSpend, RecordEarn,
// EnsureOthers) assume the caller already holds the per-user lock and an
// open database transaction; the context-taking operations acquire the
// lock themselves.
type LedgerServicer interface {
	CreateBudget(ctx context.Context, userID, name string, amount decimal.Decimal, startDate, endDate time.Time) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, closed *bool) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	UpdateBudget(ctx context.Context, userID, budgetID string, patch BudgetPatch) (*models.Budget, error)
	CloseBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	DeleteBudget(ctx context.Context, userID, budgetID string) error

	EnsureOthers(tx *gorm.DB, userID string, initialBalance decimal.Decimal) (*models.Budget, error)
	AdjustAmount(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error
	RecordSpend(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error
	RecordEarn(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error
}

// AllocationSplit is one (budget, amount) pair of a transaction's split.
type AllocationSplit struct {
	BudgetID string
	Amount   decimal.Decimal
}

// AllocationServicer defines the contract for the allocation splitter.
// All methods run inside the caller's database transaction and under the
// caller's per-user lock; a returned error rolls the whole operation back
// so no partial allocation is ever observable.
//
// Reallocate takes the type the old allocations were applied under:
// when an update flips a transaction between expense and income, the old
// split must be reversed against the column it originally hit.
type AllocationServicer interface {
	Allocate(tx *gorm.DB, txn *models.Transaction, splits []AllocationSplit) ([]models.Allocation, error)
	Reallocate(tx *gorm.DB, txn *models.Transaction, previousType models.TransactionType, splits []AllocationSplit) ([]models.Allocation, error)
	Deallocate(tx *gorm.DB, txn *models.Transaction) error
	GetTransactionAllocations(transactionID string) ([]models.Allocation, error)
}

// TransactionFields holds the full field set for creating a transaction.
type TransactionFields struct {
	Name        string
	TotalAmount decimal.Decimal
	Category    string
	Type        models.TransactionType
	Description string
	Date        time.Time
}

// TransactionPatch holds optional field updates for a transaction.
// Changing TotalAmount or Type requires supplying a matching split set.
type TransactionPatch struct {
	Name        *string
	TotalAmount *decimal.Decimal
	Category    *string
	Type        *models.TransactionType
	Description *string
	Date        *time.Time
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Type     *models.TransactionType
	Category *string
}

// ImportRow is one pre-validated transaction tuple from the bulk-import
// collaborator. Rows carry no split; each is allocated in full to Others.
type ImportRow struct {
	Name        string
	TotalAmount decimal.Decimal
	Category    string
	Type        models.TransactionType
	Description string
	Date        time.Time
}

// ImportResult reports the outcome of one imported row.
type ImportResult struct {
	Index       int                 `json:"index"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(ctx context.Context, userID string, fields TransactionFields, splits []AllocationSplit) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, transactionID string, patch TransactionPatch, splits []AllocationSplit) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	ListUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	ImportTransactions(ctx context.Context, userID string, rows []ImportRow) ([]ImportResult, error)
}

// GoalServicer defines the contract for savings-goal business logic.
type GoalServicer interface {
	CreateGoal(userID, name string, targetAmount decimal.Decimal, endDate time.Time) (*models.Goal, error)
	AddSavings(ctx context.Context, userID, goalID string, amount decimal.Decimal) (*models.Goal, error)
	GetGoalByID(userID, goalID string) (*models.Goal, error)
	GetUserGoals(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Goal], error)
	UpdateGoal(userID, goalID string, name *string, targetAmount *decimal.Decimal, endDate *time.Time) (*models.Goal, error)
	DeleteGoal(userID, goalID string) error
}

// CategoryResult reports the outcome of creating one budget from a
// forecast category. Error is empty when the budget was created.
type CategoryResult struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	BudgetID string          `json:"budget_id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ForecastServicer defines the contract for the forecast bridge.
type ForecastServicer interface {
	RequestForecast(ctx context.Context, userID string) (*models.Forecast, error)
	GetForecastByID(userID, forecastID string) (*models.Forecast, error)
	GetUserForecasts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Forecast], error)
	ApplyForecast(ctx context.Context, userID, forecastID string) ([]CategoryResult, error)
}
