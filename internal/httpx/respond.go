package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"comanda/internal/domain"
)

// WriteJSON — отдаёт JSON с нужным статусом
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem — единый формат ошибок (упрощённый RFC7807 Problem+JSON)
func WriteProblem(w http.ResponseWriter, code int, typ, detail string) {
	WriteJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

// IsExpected reports whether err belongs to the domain taxonomy, i.e. it is
// a normal refusal rather than an operational fault worth an error log.
func IsExpected(err error) bool {
	var ve *domain.ValidationError
	var ise *domain.InsufficientStockError
	var ite *domain.InvalidTransitionError
	return errors.As(err, &ve) || errors.As(err, &ise) || errors.As(err, &ite) ||
		errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrCatalogUnavailable)
}

// WriteError maps the domain error taxonomy onto HTTP. Anything outside the
// taxonomy is a 500 with no internal detail; callers log it themselves.
func WriteError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var ise *domain.InsufficientStockError
	var ite *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		WriteProblem(w, http.StatusUnprocessableEntity, "validation_error", ve.Error())
	case errors.As(err, &ise):
		WriteProblem(w, http.StatusConflict, "insufficient_stock", ise.Error())
	case errors.As(err, &ite):
		WriteProblem(w, http.StatusConflict, "invalid_transition", ite.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrTimeout):
		// transient contention: the client may retry with backoff
		WriteProblem(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteProblem(w, http.StatusForbidden, "forbidden", "not allowed for this branch")
	case errors.Is(err, domain.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrCatalogUnavailable):
		WriteProblem(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog store unreachable")
	default:
		WriteProblem(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
