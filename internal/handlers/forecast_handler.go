package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "moneta/internal/errors"
	"moneta/internal/pagination"
	"moneta/internal/services"
)

// ForecastHandler handles forecast bridge requests.
type ForecastHandler struct {
	forecastService services.ForecastServicer
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(forecastService services.ForecastServicer) *ForecastHandler {
	return &ForecastHandler{forecastService: forecastService}
}

// RequestForecast handles requesting a new forecast from the prediction
// service.
// @Summary     Request a forecast
// @Description Send the user's recent history to the prediction service and persist the result
// @Tags        forecasts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     201 {object} models.Forecast "Forecast created"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Prediction service unavailable"
// @Router      /forecasts [post]
func (h *ForecastHandler) RequestForecast(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	record, err := h.forecastService.RequestForecast(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"forecast": record})
}

// GetForecasts handles listing forecasts for the authenticated user.
// @Summary     Get forecasts
// @Description Get a paginated list of forecasts, newest first
// @Tags        forecasts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Forecast] "Paginated forecasts"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /forecasts [get]
func (h *ForecastHandler) GetForecasts(c *gin.Context) {
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

	result, err := h.forecastService.GetUserForecasts(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetForecast handles retrieving a specific forecast.
// @Summary     Get forecast by ID
// @Description Get a specific forecast with its category breakdown
// @Tags        forecasts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Forecast ID"
// @Success     200 {object} models.Forecast "Forecast details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Forecast not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /forecasts/{id} [get]
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	forecastID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	record, err := h.forecastService.GetForecastByID(userID, forecastID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"forecast": record})
}

// ApplyForecast handles creating budgets from a forecast's categories.
// @Summary     Apply a forecast
// @Description Create budgets from the forecast's category breakdown, best effort per category
// @Tags        forecasts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Forecast ID"
// @Success     200 {object} []services.CategoryResult "Per-category results"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Forecast not found"
// @Failure     409 {object} ErrorResponse "Forecast already applied"
// @Failure     503 {object} ErrorResponse "Another operation in progress"
// @Router      /forecasts/{id}/apply [post]
func (h *ForecastHandler) ApplyForecast(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	forecastID, err := pathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	results, err := h.forecastService.ApplyForecast(c.Request.Context(), userID, forecastID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
