package services

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/forecast"
	"moneta/internal/logger"
	"moneta/internal/models"
	"moneta/internal/pagination"
)

// historyLimit caps how many recent transactions are packaged for the
// prediction service.
const historyLimit = 100

// Predictor is the slice of the forecast client the bridge consumes.
type Predictor interface {
	Predict(ctx context.Context, request forecast.PredictionRequest) (*forecast.Prediction, error)
}

// forecastService bridges the external prediction service to the budget
// ledger. The long-running prediction call never holds the per-user lock;
// only the final create-budgets step does, one CreateBudget at a time.
type forecastService struct {
	db     *gorm.DB
	ledger LedgerServicer
	client Predictor
}

// NewForecastService creates a new ForecastServicer.
func NewForecastService(db *gorm.DB, ledger LedgerServicer, client Predictor) ForecastServicer {
	return &forecastService{db: db, ledger: ledger, client: client}
}

// RequestForecast packages the user's profile and recent transaction
// history, calls the prediction service, and persists the result.
func (s *forecastService) RequestForecast(ctx context.Context, userID string) (*models.Forecast, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := s.db.Where("user_id = ?", userID).
		Order("date DESC").Limit(historyLimit).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	history := make([]forecast.HistoryEntry, 0, len(transactions))
	for _, txn := range transactions {
		history = append(history, forecast.HistoryEntry{
			Category: txn.Category,
			Type:     string(txn.Type),
			Amount:   txn.TotalAmount,
			Date:     txn.Date,
		})
	}

	prediction, err := s.client.Predict(ctx, forecast.PredictionRequest{
		UserID:  userID,
		Balance: user.Balance,
		History: history,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrForecastUnavailable, err)
	}

	record := &models.Forecast{
		UserID:      userID,
		PeriodStart: prediction.PeriodStart,
		PeriodEnd:   prediction.PeriodEnd,
	}
	if err := record.SetCategories(prediction.Categories); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return record, nil
}

// GetForecastByID returns a forecast by ID if it belongs to the user.
func (s *forecastService) GetForecastByID(userID, forecastID string) (*models.Forecast, error) {
	var record models.Forecast
	if err := s.db.Where("id = ? AND user_id = ?", forecastID, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrForecastNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &record, nil
}

// GetUserForecasts returns a paginated list of the user's forecasts,
// newest first.
func (s *forecastService) GetUserForecasts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Forecast], error) {
	page.Defaults()

	base := s.db.Model(&models.Forecast{}).Where("user_id = ?", userID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var forecasts []models.Forecast
	if err := base.Order("created_at DESC").Scopes(pagination.Paginate(page)).Find(&forecasts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(forecasts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ApplyForecast creates budgets from the forecast's category breakdown,
// best effort: a category that cannot be funded from the residual pool or
// collides with an existing budget name is reported in its result, and
// the remaining categories still proceed. The forecast is marked applied
// once at least one budget was created.
func (s *forecastService) ApplyForecast(ctx context.Context, userID, forecastID string) ([]CategoryResult, error) {
	record, err := s.GetForecastByID(userID, forecastID)
	if err != nil {
		return nil, err
	}
	if record.Applied {
		return nil, apperrors.ErrForecastAlreadyApplied
	}

	categories, err := record.Categories()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(categories) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "forecast has no categories")
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]CategoryResult, 0, len(names))
	created := 0
	for _, name := range names {
		amount := categories[name]
		result := CategoryResult{Category: name, Amount: amount}

		budget, err := s.ledger.CreateBudget(ctx, userID, name, amount, record.PeriodStart, record.PeriodEnd)
		if err != nil {
			result.Error = err.Error()
			logger.Get().Infow("forecast category skipped",
				"user_id", userID,
				"category", name,
				"reason", err.Error(),
			)
		} else {
			result.BudgetID = budget.ID
			created++
		}
		results = append(results, result)
	}

	if created > 0 {
		if err := s.db.Model(record).Update("applied", true).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return results, nil
}
