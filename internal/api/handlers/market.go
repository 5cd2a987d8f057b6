package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/api/response"
	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/service"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

// MarketHandler handles HTTP requests for rate lookups.
// Rate endpoints never fail because the provider is down: they answer with fallback rates.
type MarketHandler struct {
	marketService *service.MarketDataService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketService *service.MarketDataService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// RatesResponse is a USD-pivot rate map for one point in time.
type RatesResponse struct {
	Mode  model.FetchMode `json:"mode,omitempty"`
	Date  string          `json:"date,omitempty"`
	Rates model.RateMap   `json:"rates"`
}

// Rates handles GET requests for current rates.
//
// Endpoint: GET /api/market/rates?symbols=EUR,BTC&mode=cache|fresh
// Response: 200 OK with RatesResponse
// Error: 400 Bad Request if symbols or mode are invalid
func (h *MarketHandler) Rates(w http.ResponseWriter, r *http.Request) {
	symbols, err := validation.ParseSymbols(r.URL.Query().Get("symbols"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	mode, err := validation.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rates := h.marketService.GetRates(r.Context(), symbols, mode)
	response.RespondJSON(w, http.StatusOK, RatesResponse{Mode: mode, Rates: rates})
}

// HistoricalRates handles GET requests for the rates in effect on one day.
//
// Endpoint: GET /api/market/rates/historical?date=YYYY-MM-DD&symbols=...
// Response: 200 OK with RatesResponse; symbols without a point in the lookback window are 0
// Error: 400 Bad Request if date or symbols are invalid
func (h *MarketHandler) HistoricalRates(w http.ResponseWriter, r *http.Request) {
	date, err := validation.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	symbols, err := validation.ParseSymbols(r.URL.Query().Get("symbols"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	rates := h.marketService.HistoricalRates(r.Context(), date, symbols)
	response.RespondJSON(w, http.StatusOK, RatesResponse{Date: date.Format(time.DateOnly), Rates: rates})
}

// RangeRates handles GET requests for rates on several days at once.
//
// Endpoint: GET /api/market/rates/range?dates=YYYY-MM-DD,...&symbols=...
// Response: 200 OK with a map of YYYY-MM-DD to rate map
// Error: 400 Bad Request if dates or symbols are invalid
func (h *MarketHandler) RangeRates(w http.ResponseWriter, r *http.Request) {
	dates, err := validation.ParseDates(r.URL.Query().Get("dates"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	symbols, err := validation.ParseSymbols(r.URL.Query().Get("symbols"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	response.RespondJSON(w, http.StatusOK, h.marketService.RangeRates(r.Context(), dates, symbols))
}

// CurrencyHistoryResponse holds a stored rate series keyed by timestamp or date.
type CurrencyHistoryResponse struct {
	Symbol string                     `json:"symbol"`
	Period string                     `json:"period"`
	Points map[string]decimal.Decimal `json:"points"`
}

// CurrencyHistory handles GET requests for one symbol's stored series, filling gaps from the
// provider when the store is sparse.
//
// Endpoint: GET /api/market/history/{symbol}?period=1mo
// Response: 200 OK with CurrencyHistoryResponse
// Error: 400 Bad Request if the symbol or period is invalid (symbol validated by middleware)
// Error: 500 Internal Server Error if the store cannot be read
func (h *MarketHandler) CurrencyHistory(w http.ResponseWriter, r *http.Request) {
	symbol, err := validation.ValidateSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = service.DefaultHistoryPeriod
	}

	points, err := h.marketService.CurrencyHistory(r.Context(), symbol, period)
	if err != nil {
		response.RespondServiceError(w, apperrors.ErrFailedToRetrieveHistory.Error(), err)
		return
	}
	response.RespondJSON(w, http.StatusOK, CurrencyHistoryResponse{Symbol: symbol, Period: period, Points: points})
}

// Trends handles GET requests for percentage changes against a pivot currency.
//
// Endpoint: GET /api/market/trends?symbols=...&pivot=EUR
// Response: 200 OK with model.Trends
// Error: 400 Bad Request if symbols or pivot are invalid
func (h *MarketHandler) Trends(w http.ResponseWriter, r *http.Request) {
	symbols, err := validation.ParseSymbols(r.URL.Query().Get("symbols"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pivot := model.PivotCurrency
	if raw := r.URL.Query().Get("pivot"); raw != "" {
		if pivot, err = validation.ValidateSymbol(raw); err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	response.RespondJSON(w, http.StatusOK, h.marketService.Trends(r.Context(), symbols, pivot))
}
