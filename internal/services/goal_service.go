package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/pagination"
	"moneta/internal/userlock"
)

// goalService handles savings-goal business logic. Goals are independent
// of the budget ledger: accumulation carries no conservation constraint,
// only the one-way completion latch.
type goalService struct {
	db    *gorm.DB
	locks *userlock.Locker
}

// NewGoalService creates a new GoalServicer.
func NewGoalService(db *gorm.DB, locks *userlock.Locker) GoalServicer {
	return &goalService{db: db, locks: locks}
}

// CreateGoal creates a new savings goal.
func (s *goalService) CreateGoal(userID, name string, targetAmount decimal.Decimal, endDate time.Time) (*models.Goal, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "goal name is required")
	}
	if !targetAmount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target amount must be greater than zero")
	}
	if !endDate.After(time.Now()) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "end date must be in the future")
	}

	goal := &models.Goal{
		UserID:        userID,
		Name:          name,
		TargetAmount:  targetAmount,
		CurrentAmount: decimal.Zero,
		EndDate:       endDate,
	}
	if err := s.db.Create(goal).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return goal, nil
}

// AddSavings adds to a goal's current amount. Completion latches on when
// the current amount reaches the target and never reverts automatically.
func (s *goalService) AddSavings(ctx context.Context, userID, goalID string, amount decimal.Decimal) (*models.Goal, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "savings amount must be greater than zero")
	}

	release, err := acquire(ctx, s.locks, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *models.Goal
	err = s.db.Transaction(func(tx *gorm.DB) error {
		goal, err := s.goalByID(tx, userID, goalID)
		if err != nil {
			return err
		}

		newAmount := goal.CurrentAmount.Add(amount)
		completed := goal.Completed || newAmount.GreaterThanOrEqual(goal.TargetAmount)

		if err := tx.Model(goal).Updates(map[string]interface{}{
			"current_amount": newAmount,
			"completed":      completed,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		goal.CurrentAmount = newAmount
		goal.Completed = completed
		updated = goal
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetGoalByID returns a goal by ID if it belongs to the user.
func (s *goalService) GetGoalByID(userID, goalID string) (*models.Goal, error) {
	return s.goalByID(s.db, userID, goalID)
}

func (s *goalService) goalByID(tx *gorm.DB, userID, goalID string) (*models.Goal, error) {
	var goal models.Goal
	if err := tx.Where("id = ? AND user_id = ?", goalID, userID).First(&goal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrGoalNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &goal, nil
}

// GetUserGoals returns a paginated list of the user's goals.
func (s *goalService) GetUserGoals(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Goal], error) {
	page.Defaults()

	base := s.db.Model(&models.Goal{}).Where("user_id = ?", userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var goals []models.Goal
	if err := base.Order("end_date ASC").Scopes(pagination.Paginate(page)).Find(&goals).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(goals, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// UpdateGoal updates a goal's fields. Lowering the target below the
// accumulated amount latches completion on; a raised target never
// reverts it.
func (s *goalService) UpdateGoal(userID, goalID string, name *string, targetAmount *decimal.Decimal, endDate *time.Time) (*models.Goal, error) {
	goal, err := s.goalByID(s.db, userID, goalID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name != nil {
		if *name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "goal name is required")
		}
		updates["name"] = *name
	}
	if targetAmount != nil {
		if !targetAmount.IsPositive() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "target amount must be greater than zero")
		}
		updates["target_amount"] = *targetAmount
		if goal.Completed || goal.CurrentAmount.GreaterThanOrEqual(*targetAmount) {
			updates["completed"] = true
		}
	}
	if endDate != nil {
		updates["end_date"] = *endDate
	}

	if len(updates) > 0 {
		if err := s.db.Model(goal).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.goalByID(s.db, userID, goalID)
}

// DeleteGoal soft-deletes a goal.
func (s *goalService) DeleteGoal(userID, goalID string) error {
	goal, err := s.goalByID(s.db, userID, goalID)
	if err != nil {
		return err
	}
	if err := s.db.Delete(goal).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
