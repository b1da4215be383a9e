package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/httpx"
	"comanda/internal/microservices/catalog/repository"
	"comanda/internal/microservices/catalog/service"
)

type CatalogHandler struct {
	service service.CatalogServiceInterface
	lg      *zap.SugaredLogger
}

func NewCatalogHandler(s service.CatalogServiceInterface, lg *zap.SugaredLogger) *CatalogHandler {
	return &CatalogHandler{service: s, lg: lg}
}

func (h *CatalogHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetStaticSnapshot(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.logFault("snapshot_fetch_failed", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, snap)
}

func (h *CatalogHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.GetDynamicQuotes(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.logFault("quotes_fetch_failed", err)
		httpx.WriteError(w, err)
		return
	}
	// ключи мапы в JSON — строки, клиенту так даже удобнее
	out := make(map[string]domain.DynamicQuote, len(quotes))
	for id, q := range quotes {
		out[strconv.FormatInt(id, 10)] = q
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) GetMerged(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.GetMergedCatalog(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.logFault("catalog_fetch_failed", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, catalog)
}

type staticUpdateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	CategoryID  int64  `json:"category_id"`
}

func (h *CatalogHandler) UpdateProductStatic(w http.ResponseWriter, r *http.Request) {
	actor, productID, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	var req staticUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	err := h.service.UpdateProductStatic(r.Context(), actor, r.PathValue("slug"), productID,
		repository.StaticUpdate{
			Name:        req.Name,
			Description: req.Description,
			ImageURL:    req.ImageURL,
			CategoryID:  req.CategoryID,
		})
	if err != nil {
		h.logFault("product_static_update_failed", err)
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pricingRequest struct {
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

func (h *CatalogHandler) SetProductPricing(w http.ResponseWriter, r *http.Request) {
	actor, productID, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	var req pricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httpx.WriteError(w, domain.Invalid("price", "must be a decimal string"))
		return
	}
	if err := h.service.SetProductPricing(r.Context(), actor, r.PathValue("slug"), productID, price, req.Stock); err != nil {
		h.logFault("product_pricing_update_failed", err)
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *CatalogHandler) SetProductActive(w http.ResponseWriter, r *http.Request) {
	actor, productID, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if err := h.service.SetProductActive(r.Context(), actor, r.PathValue("slug"), productID, req.Active); err != nil {
		h.logFault("product_active_update_failed", err)
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) adminRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, int64, bool) {
	businessID, err := strconv.ParseInt(r.Header.Get("X-Actor-Business"), 10, 64)
	if err != nil || businessID <= 0 {
		httpx.WriteProblem(w, http.StatusForbidden, "forbidden", "missing or malformed actor headers")
		return domain.Actor{}, 0, false
	}
	actor := domain.Actor{
		BusinessID: businessID,
		Role:       domain.Role(r.Header.Get("X-Actor-Role")),
	}
	productID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_id", "product id must be an integer")
		return domain.Actor{}, 0, false
	}
	return actor, productID, true
}

func (h *CatalogHandler) logFault(action string, err error) {
	if httpx.IsExpected(err) {
		h.lg.Debugw(action, "err", err)
		return
	}
	h.lg.Errorw(action, "err", err)
}
