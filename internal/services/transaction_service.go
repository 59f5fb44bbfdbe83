package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/pagination"
	"moneta/internal/userlock"
)

// transactionService owns transaction records and their allocation
// linkage. Creation, update, and deletion run under the per-user lock and
// inside one database transaction together with the ledger updates, so a
// transaction and its allocations exist together or not at all.
type transactionService struct {
	db        *gorm.DB
	allocator AllocationServicer
	locks     *userlock.Locker
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, allocator AllocationServicer, locks *userlock.Locker) TransactionServicer {
	return &transactionService{db: db, allocator: allocator, locks: locks}
}

func validateTransactionFields(fields TransactionFields) error {
	if fields.Name == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction name is required")
	}
	if !fields.TotalAmount.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "total amount must be greater than zero")
	}
	switch fields.Type {
	case models.TransactionTypeExpense, models.TransactionTypeIncome:
	default:
		return apperrors.ErrInvalidTransactionType
	}
	return nil
}

// othersSplit builds the single-split fallback used when no explicit
// split is supplied: the full amount goes to the Others budget.
func othersSplit(tx *gorm.DB, txn *models.Transaction) ([]AllocationSplit, error) {
	var others models.Budget
	err := tx.Where("user_id = ? AND name = ? AND closed = ?", txn.UserID, models.OthersBudgetName, false).First(&others).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrBudgetNotFound, "Others budget not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return []AllocationSplit{{BudgetID: others.ID, Amount: txn.TotalAmount}}, nil
}

// CreateTransaction creates a transaction and applies its split. Empty
// splits default to allocating the full amount against Others.
func (s *transactionService) CreateTransaction(ctx context.Context, userID string, fields TransactionFields, splits []AllocationSplit) (*models.Transaction, error) {
	if err := validateTransactionFields(fields); err != nil {
		return nil, err
	}
	if fields.Date.IsZero() {
		fields.Date = time.Now()
	}

	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	txn := &models.Transaction{
		UserID:      userID,
		Name:        fields.Name,
		TotalAmount: fields.TotalAmount,
		Category:    fields.Category,
		Type:        fields.Type,
		Description: fields.Description,
		Date:        fields.Date,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if len(splits) == 0 {
			splits, err = othersSplit(tx, txn)
			if err != nil {
				return err
			}
		}

		allocations, err := s.allocator.Allocate(tx, txn, splits)
		if err != nil {
			return err
		}
		txn.Allocations = allocations
		return nil
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// UpdateTransaction edits a transaction. Descriptive fields are freely
// editable; changing the total amount or type without supplying a new
// split set is rejected because it would desynchronize the split-sum
// invariant. When splits are supplied the allocation set is replaced.
func (s *transactionService) UpdateTransaction(ctx context.Context, userID, transactionID string, patch TransactionPatch, splits []AllocationSplit) (*models.Transaction, error) {
	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txn, err := s.transactionByID(tx, userID, transactionID)
		if err != nil {
			return err
		}

		previousType := txn.Type
		amountChanged := patch.TotalAmount != nil && !patch.TotalAmount.Equal(txn.TotalAmount)
		typeChanged := patch.Type != nil && *patch.Type != txn.Type
		if splits == nil && (amountChanged || typeChanged) {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "changing total amount or type requires a new split set")
		}

		updates := make(map[string]interface{})
		if patch.Name != nil {
			if *patch.Name == "" {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction name is required")
			}
			updates["name"] = *patch.Name
		}
		if patch.Category != nil {
			updates["category"] = *patch.Category
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.Date != nil {
			updates["date"] = *patch.Date
		}
		if amountChanged {
			if !patch.TotalAmount.IsPositive() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "total amount must be greater than zero")
			}
			updates["total_amount"] = *patch.TotalAmount
			txn.TotalAmount = *patch.TotalAmount
		}
		if typeChanged {
			switch *patch.Type {
			case models.TransactionTypeExpense, models.TransactionTypeIncome:
			default:
				return apperrors.ErrInvalidTransactionType
			}
			updates["type"] = *patch.Type
			txn.Type = *patch.Type
		}

		if len(updates) > 0 {
			if err := tx.Model(txn).Updates(updates).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		if splits != nil {
			allocations, err := s.allocator.Reallocate(tx, txn, previousType, splits)
			if err != nil {
				return err
			}
			txn.Allocations = allocations
		}

		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteTransaction reverses the transaction's allocations against their
// budgets and removes the transaction, atomically.
func (s *transactionService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return err
	}
	defer release()

	return s.db.Transaction(func(tx *gorm.DB) error {
		txn, err := s.transactionByID(tx, userID, transactionID)
		if err != nil {
			return err
		}

		if err := s.allocator.Deallocate(tx, txn); err != nil {
			return err
		}

		if err := tx.Delete(txn).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetTransactionByID retrieves a transaction with its allocations.
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.Preload("Allocations").Where("id = ? AND user_id = ?", transactionID, userID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &txn, nil
}

func (s *transactionService) transactionByID(tx *gorm.DB, userID, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &txn, nil
}

// ListUserTransactions retrieves a paginated, filtered list ordered by
// date descending. The id tiebreak keeps single-page fetches stable under
// concurrent inserts.
func (s *transactionService) ListUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Allocations").Scopes(pagination.Paginate(page)).
		Order("date DESC, id DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", *f.ToDate)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Category != nil {
		q = q.Where("category = ?", *f.Category)
	}
	return q
}

// ImportTransactions handles the bulk-import path: pre-validated tuples
// without splits, each auto-allocated in full to Others. Rows are
// processed best effort; a failed row rolls back alone and is reported in
// its result.
func (s *transactionService) ImportTransactions(ctx context.Context, userID string, rows []ImportRow) ([]ImportResult, error) {
	if len(rows) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "no rows to import")
	}

	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]ImportResult, 0, len(rows))
	for i, row := range rows {
		result := ImportResult{Index: i}

		fields := TransactionFields(row)
		if err := validateTransactionFields(fields); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		if fields.Date.IsZero() {
			fields.Date = time.Now()
		}

		txn := &models.Transaction{
			UserID:      userID,
			Name:        fields.Name,
			TotalAmount: fields.TotalAmount,
			Category:    fields.Category,
			Type:        fields.Type,
			Description: fields.Description,
			Date:        fields.Date,
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(txn).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			splits, err := othersSplit(tx, txn)
			if err != nil {
				return err
			}
			allocations, err := s.allocator.Allocate(tx, txn, splits)
			if err != nil {
				return err
			}
			txn.Allocations = allocations
			return nil
		})
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Transaction = txn
		}
		results = append(results, result)
	}

	return results, nil
}
