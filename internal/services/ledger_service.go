package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/pagination"
	"moneta/internal/userlock"
)

// ledgerService owns budget records and the conservation invariant: the
// Others budget's amount is the complement of all other open budgets, so
// money moved into a budget always comes out of the residual pool.
type ledgerService struct {
	db    *gorm.DB
	locks *userlock.Locker
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB, locks *userlock.Locker) LedgerServicer {
	return &ledgerService{db: db, locks: locks}
}

// acquire takes the per-user lock, mapping timeout to the retryable
// USER_BUSY error.
func acquire(ctx context.Context, locks *userlock.Locker, userID string) (func(), error) {
	release, err := locks.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, userlock.ErrTimeout) {
			return nil, apperrors.ErrUserBusy
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return release, nil
}

// othersHorizon is how far into the future the residual budget's end date
// is set; it exists only to satisfy the start/end schema.
const othersHorizon = 100

// EnsureOthers creates the reserved residual budget for a user, seeded
// with the initial balance. It is idempotent: if an open Others budget
// already exists it is returned unchanged. Called from user signup inside
// the signup transaction.
func (s *ledgerService) EnsureOthers(tx *gorm.DB, userID string, initialBalance decimal.Decimal) (*models.Budget, error) {
	if initialBalance.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "initial balance must not be negative")
	}

	var existing models.Budget
	err := tx.Where("user_id = ? AND name = ? AND closed = ?", userID, models.OthersBudgetName, false).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := time.Now()
	others := &models.Budget{
		UserID:    userID,
		Name:      models.OthersBudgetName,
		Amount:    initialBalance,
		Spent:     decimal.Zero,
		Earned:    decimal.Zero,
		StartDate: now,
		EndDate:   now.AddDate(othersHorizon, 0, 0),
	}
	if err := tx.Create(others).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return others, nil
}

// othersBudget loads the user's open residual budget for update.
func (s *ledgerService) othersBudget(tx *gorm.DB, userID string) (*models.Budget, error) {
	var others models.Budget
	err := tx.Where("user_id = ? AND name = ? AND closed = ?", userID, models.OthersBudgetName, false).First(&others).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrBudgetNotFound, "Others budget not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &others, nil
}

// CreateBudget creates a budget funded from the Others residual pool.
// The new budget's amount is subtracted from Others so total allocatable
// funds across all open budgets stay constant.
func (s *ledgerService) CreateBudget(ctx context.Context, userID, name string, amount decimal.Decimal, startDate, endDate time.Time) (*models.Budget, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "budget name is required")
	}
	if amount.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "budget amount must not be negative")
	}
	if startDate.After(endDate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "start date must not be after end date")
	}

	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	budget := &models.Budget{
		UserID:    userID,
		Name:      name,
		Amount:    amount,
		Spent:     decimal.Zero,
		Earned:    decimal.Zero,
		StartDate: startDate,
		EndDate:   endDate,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Budget{}).
			Where("user_id = ? AND name = ? AND closed = ?", userID, name, false).
			Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrDuplicateBudgetName
		}

		others, err := s.othersBudget(tx, userID)
		if err != nil {
			return err
		}
		if others.Allocatable().LessThan(amount) {
			return apperrors.ErrInsufficientResidualFunds
		}

		if err := tx.Create(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		// Move the funds out of the residual pool.
		return s.adjustAmount(tx, others, amount.Neg())
	})
	if err != nil {
		return nil, err
	}

	return budget, nil
}

// GetUserBudgets returns a paginated list of budgets for the user, with an
// optional closed filter.
func (s *ledgerService) GetUserBudgets(userID string, page pagination.PageRequest, closed *bool) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if closed != nil {
		base = base.Where("closed = ?", *closed)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	if err := base.Order("created_at ASC").Scopes(pagination.Paginate(page)).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetBudgetByID returns a budget by ID if it belongs to the user.
func (s *ledgerService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	return s.budgetByID(s.db, userID, budgetID)
}

func (s *ledgerService) budgetByID(tx *gorm.DB, userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := tx.Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// UpdateBudget updates a budget's fields. An amount change is funded from
// (or returned to) the Others residual pool, symmetric to CreateBudget.
// Amount and date changes are rejected once the budget is closed.
func (s *ledgerService) UpdateBudget(ctx context.Context, userID, budgetID string, patch BudgetPatch) (*models.Budget, error) {
	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *models.Budget
	err = s.db.Transaction(func(tx *gorm.DB) error {
		budget, err := s.budgetByID(tx, userID, budgetID)
		if err != nil {
			return err
		}

		if budget.Closed && (patch.Amount != nil || patch.StartDate != nil || patch.EndDate != nil) {
			return apperrors.ErrAlreadyClosed
		}
		if budget.IsOthers() && (patch.Name != nil || patch.Amount != nil) {
			return apperrors.ErrReservedBudget
		}

		updates := make(map[string]interface{})

		if patch.Name != nil && *patch.Name != budget.Name {
			if *patch.Name == "" {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "budget name is required")
			}
			var count int64
			if err := tx.Model(&models.Budget{}).
				Where("user_id = ? AND name = ? AND closed = ? AND id <> ?", userID, *patch.Name, false, budget.ID).
				Count(&count).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if count > 0 {
				return apperrors.ErrDuplicateBudgetName
			}
			updates["name"] = *patch.Name
		}

		startDate, endDate := budget.StartDate, budget.EndDate
		if patch.StartDate != nil {
			startDate = *patch.StartDate
			updates["start_date"] = startDate
		}
		if patch.EndDate != nil {
			endDate = *patch.EndDate
			updates["end_date"] = endDate
		}
		if startDate.After(endDate) {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "start date must not be after end date")
		}

		if patch.Amount != nil && !patch.Amount.Equal(budget.Amount) {
			newAmount := *patch.Amount
			if newAmount.IsNegative() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "budget amount must not be negative")
			}
			if newAmount.Add(budget.Earned).Sub(budget.Spent).IsNegative() {
				return apperrors.ErrAmountBelowSpent
			}

			delta := newAmount.Sub(budget.Amount)
			others, err := s.othersBudget(tx, userID)
			if err != nil {
				return err
			}
			if delta.IsPositive() && others.Allocatable().LessThan(delta) {
				return apperrors.ErrInsufficientResidualFunds
			}
			if err := s.adjustAmount(tx, others, delta.Neg()); err != nil {
				return err
			}
			updates["amount"] = newAmount
		}

		if len(updates) > 0 {
			if err := tx.Model(budget).Updates(updates).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		updated, err = s.budgetByID(tx, userID, budgetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CloseBudget freezes a budget. Closing is terminal: amount and dates
// become immutable. A second close fails with ALREADY_CLOSED rather than
// succeeding silently. The budget's remaining allocatable balance is not
// swept back to Others.
func (s *ledgerService) CloseBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var closed *models.Budget
	err = s.db.Transaction(func(tx *gorm.DB) error {
		budget, err := s.budgetByID(tx, userID, budgetID)
		if err != nil {
			return err
		}
		if budget.IsOthers() {
			return apperrors.WithMessage(apperrors.ErrReservedBudget, "the Others budget cannot be closed")
		}
		if budget.Closed {
			return apperrors.ErrAlreadyClosed
		}

		if err := tx.Model(budget).Update("closed", true).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		budget.Closed = true
		closed = budget
		return nil
	})
	if err != nil {
		return nil, err
	}

	return closed, nil
}

// DeleteBudget soft-deletes a budget and returns its remaining funding to
// the Others budget. It fails while allocations still reference the budget,
// and the Others budget can never be deleted.
func (s *ledgerService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return err
	}
	defer release()

	return s.db.Transaction(func(tx *gorm.DB) error {
		budget, err := s.budgetByID(tx, userID, budgetID)
		if err != nil {
			return err
		}
		if budget.IsOthers() {
			return apperrors.WithMessage(apperrors.ErrReservedBudget, "the Others budget cannot be deleted")
		}

		var count int64
		if err := tx.Model(&models.Allocation{}).Where("budget_id = ?", budget.ID).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrBudgetInUse
		}

		if budget.Amount.IsPositive() {
			others, err := s.othersBudget(tx, userID)
			if err != nil {
				return err
			}
			if err := s.AdjustAmount(tx, userID, others.ID, budget.Amount); err != nil {
				return err
			}
		}

		if err := tx.Delete(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// AdjustAmount is the raw amount increment primitive used by CreateBudget
// and UpdateBudget, and by the forecast bridge when reconciling Others.
// The caller must hold the per-user lock and pair the call with a
// conservation check; the only guard here is that a budget's amount can
// never go negative and closed budgets are immutable.
func (s *ledgerService) AdjustAmount(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error {
	budget, err := s.budgetByID(tx, userID, budgetID)
	if err != nil {
		return err
	}
	if budget.Closed {
		return apperrors.ErrAlreadyClosed
	}
	return s.adjustAmount(tx, budget, delta)
}

func (s *ledgerService) adjustAmount(tx *gorm.DB, budget *models.Budget, delta decimal.Decimal) error {
	newAmount := budget.Amount.Add(delta)
	if newAmount.IsNegative() {
		return apperrors.ErrInsufficientResidualFunds
	}
	if err := tx.Model(budget).Update("amount", newAmount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	budget.Amount = newAmount
	return nil
}

// RecordSpend increments a budget's spent total. Negative deltas reverse
// earlier allocations. No upper bound is enforced: a budget may be
// over-spent, which is surfaced to the user rather than rejected. Closed
// budgets accept deltas so allocations made before closing can still be
// reversed or edited.
func (s *ledgerService) RecordSpend(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error {
	budget, err := s.budgetByID(tx, userID, budgetID)
	if err != nil {
		return err
	}
	newSpent := budget.Spent.Add(delta)
	if newSpent.IsNegative() {
		return apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("spent for budget %s would go negative", budgetID))
	}
	if err := tx.Model(budget).Update("spent", newSpent).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	budget.Spent = newSpent
	return nil
}

// RecordEarn increments a budget's earned total. Negative deltas reverse
// earlier allocations.
func (s *ledgerService) RecordEarn(tx *gorm.DB, userID, budgetID string, delta decimal.Decimal) error {
	budget, err := s.budgetByID(tx, userID, budgetID)
	if err != nil {
		return err
	}
	newEarned := budget.Earned.Add(delta)
	if newEarned.IsNegative() {
		return apperrors.Wrap(apperrors.ErrInternalServer, fmt.Errorf("earned for budget %s would go negative", budgetID))
	}
	if err := tx.Model(budget).Update("earned", newEarned).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	budget.Earned = newEarned
	return nil
}
