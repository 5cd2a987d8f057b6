// Package middleware provides HTTP middleware for request validation and logging.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/networth-tracker/internal/api/response"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

// ValidateSymbolMiddleware rejects requests whose {symbol} URL parameter is missing or malformed
// with 400 Bad Request.
//
// Example usage in router:
//
//	r.With(middleware.ValidateSymbolMiddleware).Get("/history/{symbol}", handler.CurrencyHistory)
func ValidateSymbolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		if symbol == "" {
			response.RespondError(w, http.StatusBadRequest, "symbol is required", "")
			return
		}
		if _, err := validation.ValidateSymbol(symbol); err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid symbol", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
