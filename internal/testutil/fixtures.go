package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"moneta/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password, a unique email,
// and an open Others budget seeded with the given initial balance.
func CreateTestUser(t *testing.T, db *gorm.DB, initialBalance string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	balance := decimal.RequireFromString(initialBalance)
	user := &models.User{
		Email:    fmt.Sprintf("user%d@test.com", nextID()),
		Password: string(hash),
		Balance:  balance,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	now := time.Now()
	others := &models.Budget{
		UserID:    user.ID,
		Name:      models.OthersBudgetName,
		Amount:    balance,
		Spent:     decimal.Zero,
		Earned:    decimal.Zero,
		StartDate: now,
		EndDate:   now.AddDate(100, 0, 0),
	}
	if err := db.Create(others).Error; err != nil {
		t.Fatalf("failed to create Others budget: %v", err)
	}

	return user
}

// OthersBudget loads the user's open Others budget.
func OthersBudget(t *testing.T, db *gorm.DB, userID string) *models.Budget {
	t.Helper()

	var others models.Budget
	if err := db.Where("user_id = ? AND name = ? AND closed = ?", userID, models.OthersBudgetName, false).First(&others).Error; err != nil {
		t.Fatalf("failed to load Others budget: %v", err)
	}
	return &others
}

// ReloadBudget loads a budget by ID.
func ReloadBudget(t *testing.T, db *gorm.DB, budgetID string) *models.Budget {
	t.Helper()

	var budget models.Budget
	if err := db.Where("id = ?", budgetID).First(&budget).Error; err != nil {
		t.Fatalf("failed to reload budget %s: %v", budgetID, err)
	}
	return &budget
}

// CreateTestBudget creates an open budget with the given amount, without
// touching the Others budget.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID, name, amount string) *models.Budget {
	t.Helper()

	now := time.Now()
	budget := &models.Budget{
		UserID:    userID,
		Name:      name,
		Amount:    decimal.RequireFromString(amount),
		Spent:     decimal.Zero,
		Earned:    decimal.Zero,
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// CreateTestTransaction creates a transaction of the given type and
// amount without allocations.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, txType models.TransactionType, amount string) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		UserID:      userID,
		Name:        fmt.Sprintf("Test Transaction %d", nextID()),
		TotalAmount: decimal.RequireFromString(amount),
		Type:        txType,
		Date:        time.Now(),
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return txn
}

// CreateTestGoal creates a goal with the given target.
func CreateTestGoal(t *testing.T, db *gorm.DB, userID, target string) *models.Goal {
	t.Helper()

	goal := &models.Goal{
		UserID:        userID,
		Name:          fmt.Sprintf("Test Goal %d", nextID()),
		TargetAmount:  decimal.RequireFromString(target),
		CurrentAmount: decimal.Zero,
		EndDate:       time.Now().AddDate(0, 6, 0),
	}
	if err := db.Create(goal).Error; err != nil {
		t.Fatalf("failed to create test goal: %v", err)
	}
	return goal
}
