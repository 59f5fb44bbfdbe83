package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"moneta/internal/models"
	"moneta/internal/testutil"
	"moneta/internal/userlock"
)

func newTestAllocator(db *gorm.DB) (AllocationServicer, LedgerServicer) {
	ledger := NewLedgerService(db, userlock.New(time.Second))
	return NewAllocationService(db, ledger), ledger
}

func TestAllocate(t *testing.T) {
	t.Run("expense_split_records_spend", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")
		rent := testutil.CreateTestBudget(t, db, user.ID, "Rent", "500")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "120")
		splits := []AllocationSplit{
			{BudgetID: food.ID, Amount: d("70")},
			{BudgetID: rent.ID, Amount: d("50")},
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, splits)
			return err
		})
		testutil.AssertNoError(t, err)

		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "70")
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, rent.ID).Spent, "50")

		rows, err := allocator.GetTransactionAllocations(txn.ID)
		testutil.AssertNoError(t, err)
		if len(rows) != 2 {
			t.Fatalf("expected 2 allocation rows, got %d", len(rows))
		}
	})

	t.Run("income_split_records_earn", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		side := testutil.CreateTestBudget(t, db, user.ID, "Side Gigs", "0")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeIncome, "200")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: side.ID, Amount: d("200")}})
			return err
		})
		testutil.AssertNoError(t, err)

		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, side.ID).Earned, "200")
	})

	t.Run("sum_mismatch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "120")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("119.99")}})
			return err
		})
		testutil.AssertAppError(t, err, "ALLOCATION_MISMATCH")
	})

	t.Run("duplicate_budget_in_split", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{
				{BudgetID: food.ID, Amount: d("60")},
				{BudgetID: food.ID, Amount: d("40")},
			})
			return err
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("closed_budget_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")
		if err := db.Model(food).Update("closed", true).Error; err != nil {
			t.Fatalf("failed to close budget: %v", err)
		}

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "50")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("50")}})
			return err
		})
		testutil.AssertAppError(t, err, "REFERENCES_CLOSED_BUDGET")
	})

	t.Run("unknown_budget_rolls_back_whole_split", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{
				{BudgetID: food.ID, Amount: d("60")},
				{BudgetID: "no-such-budget", Amount: d("40")},
			})
			return err
		})
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")

		// Nothing from the split survives the rollback.
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "0")
		rows, err := allocator.GetTransactionAllocations(txn.ID)
		testutil.AssertNoError(t, err)
		if len(rows) != 0 {
			t.Errorf("expected no allocation rows, got %d", len(rows))
		}
	})
}

func TestReallocate(t *testing.T) {
	t.Run("moves_spend_between_budgets", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")
		rent := testutil.CreateTestBudget(t, db, user.ID, "Rent", "500")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("100")}})
			return err
		})
		testutil.AssertNoError(t, err)

		err = db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Reallocate(tx, txn, txn.Type, []AllocationSplit{{BudgetID: rent.ID, Amount: d("100")}})
			return err
		})
		testutil.AssertNoError(t, err)

		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "0")
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, rent.ID).Spent, "100")
	})

	t.Run("reverses_old_split_under_previous_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")
		rent := testutil.CreateTestBudget(t, db, user.ID, "Rent", "500")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("100")}})
			return err
		})
		testutil.AssertNoError(t, err)

		// The caller has already flipped the type; the old expense split
		// must still be undone against Spent, not Earned.
		txn.Type = models.TransactionTypeIncome
		err = db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Reallocate(tx, txn, models.TransactionTypeExpense, []AllocationSplit{{BudgetID: rent.ID, Amount: d("100")}})
			return err
		})
		testutil.AssertNoError(t, err)

		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "0")
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Earned, "0")
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, rent.ID).Earned, "100")
		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, rent.ID).Spent, "0")
	})

	t.Run("invalid_new_split_keeps_old_allocation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		allocator, _ := newTestAllocator(db)
		user := testutil.CreateTestUser(t, db, "1000")
		food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

		txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("100")}})
			return err
		})
		testutil.AssertNoError(t, err)

		err = db.Transaction(func(tx *gorm.DB) error {
			_, err := allocator.Reallocate(tx, txn, txn.Type, []AllocationSplit{{BudgetID: "no-such-budget", Amount: d("100")}})
			return err
		})
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")

		testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "100")
	})
}

func TestDeallocate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	allocator, _ := newTestAllocator(db)
	user := testutil.CreateTestUser(t, db, "1000")
	food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

	txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("100")}})
		return err
	})
	testutil.AssertNoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return allocator.Deallocate(tx, txn)
	})
	testutil.AssertNoError(t, err)

	testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "0")
	rows, err := allocator.GetTransactionAllocations(txn.ID)
	testutil.AssertNoError(t, err)
	if len(rows) != 0 {
		t.Errorf("expected no allocation rows, got %d", len(rows))
	}
}

func TestDeallocateReversalOnClosedBudget(t *testing.T) {
	// Reversals are always permitted; only new allocations check Closed.
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	allocator, _ := newTestAllocator(db)
	user := testutil.CreateTestUser(t, db, "1000")
	food := testutil.CreateTestBudget(t, db, user.ID, "Food", "300")

	txn := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeExpense, "100")
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := allocator.Allocate(tx, txn, []AllocationSplit{{BudgetID: food.ID, Amount: d("100")}})
		return err
	})
	testutil.AssertNoError(t, err)

	if err := db.Model(&models.Budget{}).Where("id = ?", food.ID).Update("closed", true).Error; err != nil {
		t.Fatalf("failed to close budget: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return allocator.Deallocate(tx, txn)
	})
	testutil.AssertNoError(t, err)
	testutil.AssertAmount(t, testutil.ReloadBudget(t, db, food.ID).Spent, "0")
}
