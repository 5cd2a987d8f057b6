package handlers

import (
	"net/http"

	"github.com/ndewijer/networth-tracker/internal/api/response"
	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/service"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

// PortfolioHandler handles HTTP requests for portfolio valuation endpoints.
type PortfolioHandler struct {
	portfolioService *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(portfolioService *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// Value handles GET requests for the portfolio valuation, now or on a past date.
//
// Endpoint: GET /api/portfolio/value?date=YYYY-MM-DD
// Response: 200 OK with model.PortfolioValue
// Error: 400 Bad Request if the date is malformed
// Error: 500 Internal Server Error if portfolio data cannot be loaded
func (h *PortfolioHandler) Value(w http.ResponseWriter, r *http.Request) {
	date, err := validation.ParseOptionalDate(r.URL.Query().Get("date"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	value, err := h.portfolioService.Value(r.Context(), date)
	if err != nil {
		response.RespondServiceError(w, apperrors.ErrFailedToGetPortfolioValue.Error(), err)
		return
	}
	response.RespondJSON(w, http.StatusOK, value)
}

// HistoryResponse is the value series of the portfolio in its main currency.
type HistoryResponse struct {
	Currency string               `json:"currency"`
	Range    string               `json:"range,omitempty"`
	Points   []model.HistoryPoint `json:"points"`
}

// History handles GET requests for the value series over a range preset, or between explicit
// start and end dates when both are given.
//
// Endpoint: GET /api/portfolio/history?range=1w|30d|3m|1y|all
// Endpoint: GET /api/portfolio/history?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
// Response: 200 OK with HistoryResponse
// Error: 400 Bad Request if the range or dates are invalid
// Error: 500 Internal Server Error if portfolio data cannot be loaded
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := HistoryResponse{Currency: h.portfolioService.MainCurrency()}

	var err error
	if q.Get("start_date") != "" || q.Get("end_date") != "" {
		start, end, perr := validation.ParseDateRange(q.Get("start_date"), q.Get("end_date"))
		if perr != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid date range", perr.Error())
			return
		}
		resp.Points, err = h.portfolioService.History(r.Context(), start, end)
	} else {
		resp.Range = q.Get("range")
		if resp.Range == "" {
			resp.Range = service.DefaultHistoryRange
		}
		resp.Points, err = h.portfolioService.HistoryPreset(r.Context(), resp.Range)
	}
	if err != nil {
		response.RespondServiceError(w, apperrors.ErrFailedToGetPortfolioHistory.Error(), err)
		return
	}
	response.RespondJSON(w, http.StatusOK, resp)
}

// Performance handles GET requests for returns between two dates.
//
// Endpoint: GET /api/portfolio/performance?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
// Response: 200 OK with model.PerformanceSummary; mwr is null when it cannot be determined
// Error: 400 Bad Request if the dates are missing, malformed or out of order
// Error: 500 Internal Server Error if portfolio data cannot be loaded
func (h *PortfolioHandler) Performance(w http.ResponseWriter, r *http.Request) {
	start, end, err := validation.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	summary, err := h.portfolioService.PerformanceSummary(r.Context(), start, end)
	if err != nil {
		response.RespondServiceError(w, apperrors.ErrFailedToGetPerformance.Error(), err)
		return
	}
	response.RespondJSON(w, http.StatusOK, summary)
}
