package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func budgetDates() (string, string) {
	start := time.Now().Format(time.RFC3339)
	end := time.Now().AddDate(0, 1, 0).Format(time.RFC3339)
	return start, end
}

// createBudget creates a budget and returns its JSON representation.
func (app *testApp) createBudget(t *testing.T, token, name, amount string) map[string]interface{} {
	t.Helper()
	start, end := budgetDates()
	body := fmt.Sprintf(`{"name":%q,"amount":%q,"start_date":%q,"end_date":%q}`, name, amount, start, end)
	rec := app.request("POST", "/api/v1/budgets", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create budget %s failed: %d %s", name, rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["budget"].(map[string]interface{})
}

// getBudget fetches a single budget by ID.
func (app *testApp) getBudget(t *testing.T, token, id string) map[string]interface{} {
	t.Helper()
	rec := app.request("GET", "/api/v1/budgets/"+id, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get budget failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["budget"].(map[string]interface{})
}

func TestBudgetFlow_CreateSpendClose(t *testing.T) {
	app := setupApp(t, nil)
	token, _, _ := app.registerUser(t, "budget@test.com", "password123", "1000")

	// Creating a budget moves funds out of the residual pool.
	food := app.createBudget(t, token, "Food", "300")
	if food["amount"] != "300" {
		t.Errorf("expected Food amount 300, got %v", food["amount"])
	}
	others := app.othersBudget(t, token)
	if others["amount"] != "700" {
		t.Errorf("expected Others at 700 after funding Food, got %v", others["amount"])
	}

	// An expense split against Food raises its spent total.
	foodID := food["id"].(string)
	body := fmt.Sprintf(`{"name":"Groceries","total_amount":"50","type":"expense","splits":[{"budget_id":%q,"amount":"50"}]}`, foodID)
	rec := app.request("POST", "/api/v1/transactions", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction failed: %d %s", rec.Code, rec.Body.String())
	}

	food = app.getBudget(t, token, foodID)
	if food["spent"] != "50" {
		t.Errorf("expected Food spent 50, got %v", food["spent"])
	}

	// Closing freezes the budget's funding.
	rec = app.request("POST", "/api/v1/budgets/"+foodID+"/close", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("close budget failed: %d %s", rec.Code, rec.Body.String())
	}
	closed := parseJSON(t, rec)["budget"].(map[string]interface{})
	if closed["closed"] != true {
		t.Errorf("expected budget closed, got %v", closed["closed"])
	}

	// Closing does not sweep remaining funds back to Others.
	others = app.othersBudget(t, token)
	if others["amount"] != "700" {
		t.Errorf("expected Others unchanged at 700 after close, got %v", others["amount"])
	}

	// Funding changes on a closed budget are rejected.
	rec = app.request("PUT", "/api/v1/budgets/"+foodID, `{"amount":"400"}`, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 updating closed budget, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "ALREADY_CLOSED" {
		t.Errorf("expected ALREADY_CLOSED, got %v", code)
	}

	// Closing again is also rejected.
	rec = app.request("POST", "/api/v1/budgets/"+foodID+"/close", "", token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 closing twice, got %d", rec.Code)
	}
}

func TestBudgetFlow_InsufficientResidualFunds(t *testing.T) {
	app := setupApp(t, nil)
	token, _, _ := app.registerUser(t, "poor@test.com", "password123", "100")

	start, end := budgetDates()
	body := fmt.Sprintf(`{"name":"Yacht","amount":"5000","start_date":%q,"end_date":%q}`, start, end)
	rec := app.request("POST", "/api/v1/budgets", body, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "INSUFFICIENT_RESIDUAL_FUNDS" {
		t.Errorf("expected INSUFFICIENT_RESIDUAL_FUNDS, got %v", code)
	}

	// The residual pool is untouched after the rejection.
	others := app.othersBudget(t, token)
	if others["amount"] != "100" {
		t.Errorf("expected Others unchanged at 100, got %v", others["amount"])
	}
}

func TestBudgetFlow_UpdateFundingMovesResidual(t *testing.T) {
	app := setupApp(t, nil)
	token, _, _ := app.registerUser(t, "update@test.com", "password123", "1000")

	rent := app.createBudget(t, token, "Rent", "400")
	rentID := rent["id"].(string)

	// Raising the funding draws more from Others.
	rec := app.request("PUT", "/api/v1/budgets/"+rentID, `{"amount":"600"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", rec.Code, rec.Body.String())
	}
	others := app.othersBudget(t, token)
	if others["amount"] != "400" {
		t.Errorf("expected Others at 400, got %v", others["amount"])
	}

	// Lowering it returns the difference.
	rec = app.request("PUT", "/api/v1/budgets/"+rentID, `{"amount":"100"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", rec.Code, rec.Body.String())
	}
	others = app.othersBudget(t, token)
	if others["amount"] != "900" {
		t.Errorf("expected Others at 900, got %v", others["amount"])
	}
}

func TestBudgetFlow_OthersIsReserved(t *testing.T) {
	app := setupApp(t, nil)
	token, _, _ := app.registerUser(t, "reserved@test.com", "password123", "1000")

	others := app.othersBudget(t, token)
	othersID := others["id"].(string)

	// Others cannot be closed.
	rec := app.request("POST", "/api/v1/budgets/"+othersID+"/close", "", token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 closing Others, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "RESERVED_BUDGET" {
		t.Errorf("expected RESERVED_BUDGET, got %v", code)
	}

	// Others cannot be deleted.
	rec = app.request("DELETE", "/api/v1/budgets/"+othersID, "", token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 deleting Others, got %d: %s", rec.Code, rec.Body.String())
	}

	// A second budget named Others cannot be created.
	start, end := budgetDates()
	body := fmt.Sprintf(`{"name":"Others","amount":"10","start_date":%q,"end_date":%q}`, start, end)
	rec = app.request("POST", "/api/v1/budgets", body, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 creating Others, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBudgetFlow_DeleteReturnsFundsToOthers(t *testing.T) {
	app := setupApp(t, nil)
	token, _, _ := app.registerUser(t, "delete@test.com", "password123", "1000")

	travel := app.createBudget(t, token, "Travel", "250")
	travelID := travel["id"].(string)

	rec := app.request("DELETE", "/api/v1/budgets/"+travelID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", rec.Code, rec.Body.String())
	}

	others := app.othersBudget(t, token)
	if others["amount"] != "1000" {
		t.Errorf("expected Others restored to 1000, got %v", others["amount"])
	}

	rec = app.request("GET", "/api/v1/budgets/"+travelID, "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}
