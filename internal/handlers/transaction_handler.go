package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "moneta/internal/errors"
	"moneta/internal/models"
	"moneta/internal/pagination"
	"moneta/internal/services"
)

// TransactionHandler handles transaction requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	allocationService  services.AllocationServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, allocationService services.AllocationServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, allocationService: allocationService}
}

// SplitRequest is one (budget, amount) pair of a transaction's split.
type SplitRequest struct {
	BudgetID string `json:"budget_id" binding:"required"`
	Amount   string `json:"amount" binding:"required,money_positive"`
}

// CreateTransactionRequest represents the payload for creating a transaction.
// When splits are omitted the full amount is allocated to Others.
type CreateTransactionRequest struct {
	Name        string                 `json:"name" binding:"required,min=1,max=200"`
	TotalAmount string                 `json:"total_amount" binding:"required,money_positive"`
	Category    string                 `json:"category" binding:"max=100"`
	Type        models.TransactionType `json:"type" binding:"required,transaction_type"`
	Description string                 `json:"description" binding:"max=500"`
	Date        time.Time              `json:"date"`
	Splits      []SplitRequest         `json:"splits" binding:"omitempty,dive"`
}

// UpdateTransactionRequest represents the payload for updating a transaction.
// Changing total_amount or type requires a matching split set.
type UpdateTransactionRequest struct {
	Name        *string                 `json:"name" binding:"omitempty,min=1,max=200"`
	TotalAmount *string                 `json:"total_amount" binding:"omitempty,money_positive"`
	Category    *string                 `json:"category" binding:"omitempty,max=100"`
	Type        *models.TransactionType `json:"type" binding:"omitempty,transaction_type"`
	Description *string                 `json:"description" binding:"omitempty,max=500"`
	Date        *time.Time              `json:"date"`
	Splits      []SplitRequest          `json:"splits" binding:"omitempty,dive"`
}

// ImportRowRequest is one transaction tuple in a bulk import.
type ImportRowRequest struct {
	Name        string                 `json:"name" binding:"required,min=1,max=200"`
	TotalAmount string                 `json:"total_amount" binding:"required,money_positive"`
	Category    string                 `json:"category" binding:"max=100"`
	Type        models.TransactionType `json:"type" binding:"required,transaction_type"`
	Description string                 `json:"description" binding:"max=500"`
	Date        time.Time              `json:"date"`
}

// ImportRequest represents the bulk-import payload.
type ImportRequest struct {
	Rows []ImportRowRequest `json:"rows" binding:"required,min=1,max=1000,dive"`
}

func parseSplits(requests []SplitRequest) ([]services.AllocationSplit, error) {
	if requests == nil {
		return nil, nil
	}
	splits := make([]services.AllocationSplit, 0, len(requests))
	for _, r := range requests {
		amount, err := parseAmount(r.Amount)
		if err != nil {
			return nil, err
		}
		splits = append(splits, services.AllocationSplit{BudgetID: r.BudgetID, Amount: amount})
	}
	return splits, nil
}

// CreateTransaction handles the creation of a new transaction.
// @Summary     Create a transaction
// @Description Create a transaction and split it across budgets; omitted splits go to Others
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input or split mismatch"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Split references a closed budget"
// @Failure     503 {object} ErrorResponse "Another operation in progress"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	totalAmount, err := parseAmount(req.TotalAmount)
	if err != nil {
		respondWithError(c, err)
		return
	}
	splits, err := parseSplits(req.Splits)
	if err != nil {
		respondWithError(c, err)
		return
	}

	fields := services.TransactionFields{
		Name:        req.Name,
		TotalAmount: totalAmount,
		Category:    req.Category,
		Type:        req.Type,
		Description: req.Description,
		Date:        req.Date,
	}

	txn, err := h.transactionService.CreateTransaction(c.Request.Context(), userID, fields, splits)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// GetTransactions handles listing transactions for the authenticated user.
// @Summary     Get transactions
// @Description Get a paginated, filtered list of transactions, newest first
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       from_date query string false "Filter from date (RFC 3339)"
// @Param       to_date   query string false "Filter to date (RFC 3339)"
// @Param       type      query string false "Filter by type (income/expense)"
// @Param       category  query string false "Filter by category"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.TransactionFilter
	if v := c.Query("from_date"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "from_date must be RFC 3339"))
			return
		}
		filter.FromDate = &parsed
	}
	if v := c.Query("to_date"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must be RFC 3339"))
			return
		}
		filter.ToDate = &parsed
	}
	if v := c.Query("type"); v != "" {
		txType := models.TransactionType(v)
		if txType != models.TransactionTypeIncome && txType != models.TransactionTypeExpense {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be 'income' or 'expense'"))
			return
		}
		filter.Type = &txType
	}
	if v := c.Query("category"); v != "" {
		filter.Category = &v
	}

	result, err := h.transactionService.ListUserTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTransaction handles retrieving a specific transaction.
// @Summary     Get transaction by ID
// @Description Get a specific transaction with its allocations
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn, err := h.transactionService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// UpdateTransaction handles updating an existing transaction.
// @Summary     Update transaction
// @Description Update a transaction; amount or type changes require a matching split set
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                   true "Transaction ID"
// @Param       request body UpdateTransactionRequest true "Updated transaction details"
// @Success     200 {object} models.Transaction "Updated transaction"
// @Failure     400 {object} ErrorResponse "Invalid input or split mismatch"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Split references a closed budget"
// @Failure     503 {object} ErrorResponse "Another operation in progress"
// @Router      /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	patch := services.TransactionPatch{
		Name:        req.Name,
		Category:    req.Category,
		Type:        req.Type,
		Description: req.Description,
		Date:        req.Date,
	}
	if req.TotalAmount != nil {
		amount, err := parseAmount(*req.TotalAmount)
		if err != nil {
			respondWithError(c, err)
			return
		}
		patch.TotalAmount = &amount
	}
	splits, err := parseSplits(req.Splits)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn, err := h.transactionService.UpdateTransaction(c.Request.Context(), userID, transactionID, patch, splits)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// DeleteTransaction handles deleting a transaction.
// @Summary     Delete transaction
// @Description Delete a transaction, reversing its allocations against their budgets
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} MessageResponse "Transaction deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     503 {object} ErrorResponse "Another operation in progress"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.DeleteTransaction(c.Request.Context(), userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}

// GetTransactionAllocations handles listing a transaction's allocations.
// @Summary     Get transaction allocations
// @Description Get the allocation rows linking a transaction to its budgets
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} []models.Allocation "Allocation rows"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id}/allocations [get]
func (h *TransactionHandler) GetTransactionAllocations(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	// Ownership check before exposing allocation rows.
	if _, err := h.transactionService.GetTransactionByID(userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	allocations, err := h.allocationService.GetTransactionAllocations(transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allocations": allocations})
}

// ImportTransactions handles bulk imports.
// @Summary     Import transactions
// @Description Bulk-import transactions; each row is allocated in full to Others, best effort
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ImportRequest true "Rows to import"
// @Success     200 {object} []services.ImportResult "Per-row results"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     503 {object} ErrorResponse "Another operation in progress"
// @Router      /transactions/import [post]
func (h *TransactionHandler) ImportTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	rows := make([]services.ImportRow, 0, len(req.Rows))
	for _, r := range req.Rows {
		amount, err := parseAmount(r.TotalAmount)
		if err != nil {
			respondWithError(c, err)
			return
		}
		rows = append(rows, services.ImportRow{
			Name:        r.Name,
			TotalAmount: amount,
			Category:    r.Category,
			Type:        r.Type,
			Description: r.Description,
			Date:        r.Date,
		})
	}

	results, err := h.transactionService.ImportTransactions(c.Request.Context(), userID, rows)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}
