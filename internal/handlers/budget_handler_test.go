package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/pagination"
	"moneta/internal/services"
)

// mockLedgerService implements services.LedgerServicer with overridable
// functions per method.
type mockLedgerService struct {
	createBudgetFn   func(ctx context.Context, userID, name string, amount decimal.Decimal, startDate, endDate time.Time) (*models.Budget, error)
	getUserBudgetsFn func(userID string, page pagination.PageRequest, closed *bool) (*pagination.PageResponse[models.Budget], error)
	getBudgetByIDFn  func(userID, budgetID string) (*models.Budget, error)
	updateBudgetFn   func(ctx context.Context, userID, budgetID string, patch services.BudgetPatch) (*models.Budget, error)
	closeBudgetFn    func(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	deleteBudgetFn   func(ctx context.Context, userID, budgetID string) error
}

func (m *mockLedgerService) CreateBudget(ctx context.Context, userID, name string, amount decimal.Decimal, startDate, endDate time.Time) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(ctx, userID, name, amount, startDate, endDate)
	}
	return &models.Budget{}, nil
}

func (m *mockLedgerService) GetUserBudgets(userID string, page pagination.PageRequest, closed *bool) (*pagination.PageResponse[models.Budget], error) {
	if m.getUserBudgetsFn != nil {
		return m.getUserBudgetsFn(userID, page, closed)
	}
	resp := pagination.NewPageResponse([]models.Budget{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockLedgerService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockLedgerService) UpdateBudget(ctx context.Context, userID, budgetID string, patch services.BudgetPatch) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(ctx, userID, budgetID, patch)
	}
	return &models.Budget{}, nil
}

func (m *mockLedgerService) CloseBudget(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.closeBudgetFn != nil {
		return m.closeBudgetFn(ctx, userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockLedgerService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(ctx, userID, budgetID)
	}
	return nil
}

func (m *mockLedgerService) EnsureOthers(_ *gorm.DB, _ string, _ decimal.Decimal) (*models.Budget, error) {
	return &models.Budget{}, nil
}

func (m *mockLedgerService) AdjustAmount(_ *gorm.DB, _, _ string, _ decimal.Decimal) error {
	return nil
}

func (m *mockLedgerService) RecordSpend(_ *gorm.DB, _, _ string, _ decimal.Decimal) error {
	return nil
}

func (m *mockLedgerService) RecordEarn(_ *gorm.DB, _, _ string, _ decimal.Decimal) error {
	return nil
}

func setupBudgetRouter(handler *BudgetHandler) *gin.Engine {
	r := gin.New()
	auth := injectUserID("user-1")
	r.POST("/budgets", auth, handler.CreateBudget)
	r.GET("/budgets", auth, handler.GetBudgets)
	r.GET("/budgets/:id", auth, handler.GetBudget)
	r.PUT("/budgets/:id", auth, handler.UpdateBudget)
	r.POST("/budgets/:id/close", auth, handler.CloseBudget)
	r.DELETE("/budgets/:id", auth, handler.DeleteBudget)
	return r
}

func TestBudgetHandler_CreateBudget(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		ledger := &mockLedgerService{
			createBudgetFn: func(_ context.Context, userID, name string, amount decimal.Decimal, startDate, endDate time.Time) (*models.Budget, error) {
				return &models.Budget{
					Base:      models.Base{ID: "budget-1"},
					UserID:    userID,
					Name:      name,
					Amount:    amount,
					StartDate: startDate,
					EndDate:   endDate,
				}, nil
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"300","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		budget := result["budget"].(map[string]interface{})
		if budget["name"] != "Food" {
			t.Errorf("expected name Food, got %v", budget["name"])
		}
		if budget["amount"] != "300" {
			t.Errorf("expected amount 300, got %v", budget["amount"])
		}
	})

	t.Run("returns 400 on malformed amount", func(t *testing.T) {
		handler := NewBudgetHandler(&mockLedgerService{})
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"lots","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on negative amount", func(t *testing.T) {
		handler := NewBudgetHandler(&mockLedgerService{})
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"-20","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 when residual funds are insufficient", func(t *testing.T) {
		ledger := &mockLedgerService{
			createBudgetFn: func(_ context.Context, _, _ string, _ decimal.Decimal, _, _ time.Time) (*models.Budget, error) {
				return nil, apperrors.ErrInsufficientResidualFunds
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"999999","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INSUFFICIENT_RESIDUAL_FUNDS")
	})

	t.Run("returns 409 on duplicate name", func(t *testing.T) {
		ledger := &mockLedgerService{
			createBudgetFn: func(_ context.Context, _, _ string, _ decimal.Decimal, _, _ time.Time) (*models.Budget, error) {
				return nil, apperrors.ErrDuplicateBudgetName
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"300","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_BUDGET_NAME")
	})

	t.Run("returns 503 when the user is busy", func(t *testing.T) {
		ledger := &mockLedgerService{
			createBudgetFn: func(_ context.Context, _, _ string, _ decimal.Decimal, _, _ time.Time) (*models.Budget, error) {
				return nil, apperrors.ErrUserBusy
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Food","amount":"300","start_date":"2026-09-01T00:00:00Z","end_date":"2026-09-30T00:00:00Z"}`)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "USER_BUSY")
	})
}

func TestBudgetHandler_GetBudgets(t *testing.T) {
	t.Run("passes closed filter", func(t *testing.T) {
		var receivedClosed *bool
		ledger := &mockLedgerService{
			getUserBudgetsFn: func(_ string, _ pagination.PageRequest, closed *bool) (*pagination.PageResponse[models.Budget], error) {
				receivedClosed = closed
				resp := pagination.NewPageResponse([]models.Budget{}, 1, 20, 0)
				return &resp, nil
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "GET", "/budgets?closed=false", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if receivedClosed == nil || *receivedClosed {
			t.Errorf("expected closed=false filter, got %v", receivedClosed)
		}
	})

	t.Run("returns 400 on invalid closed value", func(t *testing.T) {
		handler := NewBudgetHandler(&mockLedgerService{})
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "GET", "/budgets?closed=maybe", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_GetBudget(t *testing.T) {
	t.Run("returns 200 with overspent flag", func(t *testing.T) {
		ledger := &mockLedgerService{
			getBudgetByIDFn: func(_, budgetID string) (*models.Budget, error) {
				return &models.Budget{
					Base:      models.Base{ID: budgetID},
					Name:      "Food",
					Amount:    decimal.RequireFromString("100"),
					Spent:     decimal.RequireFromString("150"),
					Overspent: true,
				}, nil
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "GET", "/budgets/budget-1", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		budget := result["budget"].(map[string]interface{})
		if budget["overspent"] != true {
			t.Errorf("expected overspent flag in response, got %v", budget["overspent"])
		}
	})

	t.Run("returns 404 when not found", func(t *testing.T) {
		ledger := &mockLedgerService{
			getBudgetByIDFn: func(_, _ string) (*models.Budget, error) {
				return nil, apperrors.ErrBudgetNotFound
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "GET", "/budgets/missing", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_UpdateBudget(t *testing.T) {
	t.Run("passes only supplied fields", func(t *testing.T) {
		var receivedPatch services.BudgetPatch
		ledger := &mockLedgerService{
			updateBudgetFn: func(_ context.Context, _, budgetID string, patch services.BudgetPatch) (*models.Budget, error) {
				receivedPatch = patch
				return &models.Budget{Base: models.Base{ID: budgetID}}, nil
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "PUT", "/budgets/budget-1", `{"amount":"450"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if receivedPatch.Name != nil {
			t.Error("expected name to be unset")
		}
		if receivedPatch.Amount == nil || !receivedPatch.Amount.Equal(decimal.RequireFromString("450")) {
			t.Errorf("expected amount 450 in patch, got %v", receivedPatch.Amount)
		}
	})

	t.Run("returns 409 on closed budget", func(t *testing.T) {
		ledger := &mockLedgerService{
			updateBudgetFn: func(_ context.Context, _, _ string, _ services.BudgetPatch) (*models.Budget, error) {
				return nil, apperrors.ErrAlreadyClosed
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "PUT", "/budgets/budget-1", `{"amount":"450"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ALREADY_CLOSED")
	})

	t.Run("returns 400 when amount drops below spent", func(t *testing.T) {
		ledger := &mockLedgerService{
			updateBudgetFn: func(_ context.Context, _, _ string, _ services.BudgetPatch) (*models.Budget, error) {
				return nil, apperrors.ErrAmountBelowSpent
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "PUT", "/budgets/budget-1", `{"amount":"10"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "AMOUNT_BELOW_SPENT")
	})
}

func TestBudgetHandler_CloseBudget(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		ledger := &mockLedgerService{
			closeBudgetFn: func(_ context.Context, _, budgetID string) (*models.Budget, error) {
				return &models.Budget{Base: models.Base{ID: budgetID}, Closed: true}, nil
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets/budget-1/close", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		budget := result["budget"].(map[string]interface{})
		if budget["closed"] != true {
			t.Errorf("expected closed budget in response, got %v", budget["closed"])
		}
	})

	t.Run("returns 409 when already closed", func(t *testing.T) {
		ledger := &mockLedgerService{
			closeBudgetFn: func(_ context.Context, _, _ string) (*models.Budget, error) {
				return nil, apperrors.ErrAlreadyClosed
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets/budget-1/close", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("returns 400 for the Others budget", func(t *testing.T) {
		ledger := &mockLedgerService{
			closeBudgetFn: func(_ context.Context, _, _ string) (*models.Budget, error) {
				return nil, apperrors.ErrReservedBudget
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "POST", "/budgets/others-id/close", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "RESERVED_BUDGET")
	})
}

func TestBudgetHandler_DeleteBudget(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		handler := NewBudgetHandler(&mockLedgerService{})
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "DELETE", "/budgets/budget-1", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("returns 409 when budget is referenced", func(t *testing.T) {
		ledger := &mockLedgerService{
			deleteBudgetFn: func(_ context.Context, _, _ string) error {
				return apperrors.ErrBudgetInUse
			},
		}
		handler := NewBudgetHandler(ledger)
		r := setupBudgetRouter(handler)

		rec := doRequest(r, "DELETE", "/budgets/budget-1", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "BUDGET_IN_USE")
	})
}
