package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/money"
)

// allocationService splits a transaction's total amount across budgets.
// Every mutation runs inside the caller's database transaction, so a
// failure at any split rolls back the whole operation and no partial
// allocation is observable.
type allocationService struct {
	db     *gorm.DB
	ledger LedgerServicer
}

// NewAllocationService creates a new AllocationServicer.
func NewAllocationService(db *gorm.DB, ledger LedgerServicer) AllocationServicer {
	return &allocationService{db: db, ledger: ledger}
}

// validateSplits checks shape: non-empty, positive amounts, distinct
// budget IDs, and an exact sum against the transaction total.
func validateSplits(total decimal.Decimal, splits []AllocationSplit) error {
	if len(splits) == 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one split is required")
	}

	seen := make(map[string]bool, len(splits))
	amounts := make([]decimal.Decimal, 0, len(splits))
	for _, split := range splits {
		if split.BudgetID == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "split budget ID is required")
		}
		if !split.Amount.IsPositive() {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "split amounts must be greater than zero")
		}
		if seen[split.BudgetID] {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "a budget may appear at most once per split")
		}
		seen[split.BudgetID] = true
		amounts = append(amounts, split.Amount)
	}

	if !money.Sum(amounts).Equal(total) {
		return apperrors.ErrAllocationMismatch
	}
	return nil
}

// loadOpenBudgets verifies every split target exists, belongs to the
// user, and is open. New allocations against closed budgets are rejected;
// only reversals of pre-existing allocations may touch closed budgets.
func (s *allocationService) loadOpenBudgets(tx *gorm.DB, userID string, splits []AllocationSplit) error {
	for _, split := range splits {
		var budget models.Budget
		if err := tx.Where("id = ? AND user_id = ?", split.BudgetID, userID).First(&budget).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrBudgetNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if budget.Closed {
			return apperrors.ErrReferencesClosedBudget
		}
	}
	return nil
}

// apply records one split against the ledger: expenses increment spent,
// incomes increment earned.
func (s *allocationService) apply(tx *gorm.DB, userID string, txType models.TransactionType, budgetID string, amount decimal.Decimal) error {
	switch txType {
	case models.TransactionTypeExpense:
		return s.ledger.RecordSpend(tx, userID, budgetID, amount)
	case models.TransactionTypeIncome:
		return s.ledger.RecordEarn(tx, userID, budgetID, amount)
	default:
		return apperrors.ErrInvalidTransactionType
	}
}

// Allocate validates the split set and applies it: each split updates its
// budget's running totals and persists an Allocation row.
func (s *allocationService) Allocate(tx *gorm.DB, txn *models.Transaction, splits []AllocationSplit) ([]models.Allocation, error) {
	if err := validateSplits(txn.TotalAmount, splits); err != nil {
		return nil, err
	}
	if err := s.loadOpenBudgets(tx, txn.UserID, splits); err != nil {
		return nil, err
	}

	allocations := make([]models.Allocation, 0, len(splits))
	for _, split := range splits {
		if err := s.apply(tx, txn.UserID, txn.Type, split.BudgetID, split.Amount); err != nil {
			return nil, err
		}

		allocation := models.Allocation{
			TransactionID: txn.ID,
			BudgetID:      split.BudgetID,
			Amount:        split.Amount,
		}
		if err := tx.Create(&allocation).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		allocations = append(allocations, allocation)
	}

	return allocations, nil
}

// reverse undoes the ledger effect of existing allocations against the
// type they were applied under. Reversal is permitted against closed
// budgets: the linkage predates the close.
func (s *allocationService) reverse(tx *gorm.DB, userID string, txType models.TransactionType, allocations []models.Allocation) error {
	for _, allocation := range allocations {
		if err := s.apply(tx, userID, txType, allocation.BudgetID, allocation.Amount.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// removeRows hard-deletes allocation rows. Soft deletion would leave the
// (transaction, budget) unique index occupied and block re-allocation of
// the same budget.
func removeRows(tx *gorm.DB, transactionID string) error {
	if err := tx.Unscoped().Where("transaction_id = ?", transactionID).Delete(&models.Allocation{}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// Reallocate replaces a transaction's split set. The new splits are
// validated in full before any budget is touched, so a rejected
// reallocation leaves the old split intact. The old allocations are
// reversed under previousType: txn may already carry an updated type,
// and the reversal must hit the column the old split originally moved.
func (s *allocationService) Reallocate(tx *gorm.DB, txn *models.Transaction, previousType models.TransactionType, splits []AllocationSplit) ([]models.Allocation, error) {
	if err := validateSplits(txn.TotalAmount, splits); err != nil {
		return nil, err
	}
	if err := s.loadOpenBudgets(tx, txn.UserID, splits); err != nil {
		return nil, err
	}

	old, err := s.transactionAllocations(tx, txn.ID)
	if err != nil {
		return nil, err
	}
	if err := s.reverse(tx, txn.UserID, previousType, old); err != nil {
		return nil, err
	}
	if err := removeRows(tx, txn.ID); err != nil {
		return nil, err
	}

	return s.Allocate(tx, txn, splits)
}

// Deallocate reverses and removes all of a transaction's allocations;
// used when the transaction is deleted.
func (s *allocationService) Deallocate(tx *gorm.DB, txn *models.Transaction) error {
	allocations, err := s.transactionAllocations(tx, txn.ID)
	if err != nil {
		return err
	}
	if err := s.reverse(tx, txn.UserID, txn.Type, allocations); err != nil {
		return err
	}
	return removeRows(tx, txn.ID)
}

// GetTransactionAllocations lists the allocations linked to a transaction.
func (s *allocationService) GetTransactionAllocations(transactionID string) ([]models.Allocation, error) {
	return s.transactionAllocations(s.db, transactionID)
}

func (s *allocationService) transactionAllocations(tx *gorm.DB, transactionID string) ([]models.Allocation, error) {
	var allocations []models.Allocation
	if err := tx.Where("transaction_id = ?", transactionID).Find(&allocations).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return allocations, nil
}
