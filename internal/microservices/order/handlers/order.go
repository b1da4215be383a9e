package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/httpx"
	"comanda/internal/microservices/order/repository"
	"comanda/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
	lg      *zap.SugaredLogger
}

func NewOrderHandler(s service.OrderServiceInterface, lg *zap.SugaredLogger) *OrderHandler {
	return &OrderHandler{service: s, lg: lg}
}

type createOrderRequest struct {
	BranchID int64 `json:"branch_id"`
	Customer struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address,omitempty"`
	} `json:"customer"`
	DeliveryTypeID  int64  `json:"delivery_type_id"`
	PaymentMethodID int64  `json:"payment_method_id"`
	Observations    string `json:"observations,omitempty"`
	Lines           []struct {
		ProductID int64  `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Note      string `json:"note,omitempty"`
	} `json:"lines"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	in := repository.AdmitOrderInput{
		BranchID:        req.BranchID,
		CustomerName:    req.Customer.Name,
		CustomerPhone:   req.Customer.Phone,
		CustomerAddress: req.Customer.Address,
		PaymentMethodID: req.PaymentMethodID,
		DeliveryTypeID:  req.DeliveryTypeID,
		Observations:    req.Observations,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, repository.AdmitLine{
			ProductID: l.ProductID, Quantity: l.Quantity, Note: l.Note,
		})
	}

	order, err := h.service.AdmitOrder(r.Context(), in)
	if err != nil {
		h.logFault("order_admission_failed", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_id", "order id must be an integer")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.logFault("order_lookup_failed", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

type transitionRequest struct {
	NewStatus string `json:"new_status"`
}

func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httpx.WriteProblem(w, http.StatusForbidden, "forbidden", "missing or malformed actor headers")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_id", "order id must be an integer")
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	order, err := h.service.Transition(r.Context(), actor, id, domain.OrderStatus(req.NewStatus))
	if err != nil {
		h.logFault("order_transition_failed", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) logFault(action string, err error) {
	// ошибки из таксономии — штатные отказы, шумим только по остальным
	if httpx.IsExpected(err) {
		h.lg.Debugw(action, "err", err)
		return
	}
	h.lg.Errorw(action, "err", err)
}

// actorFromRequest reads the principal the auth middleware (external to this
// service) verified upstream. Staff actors must carry their branch id.
func actorFromRequest(r *http.Request) (domain.Actor, bool) {
	businessID, err := strconv.ParseInt(r.Header.Get("X-Actor-Business"), 10, 64)
	if err != nil || businessID <= 0 {
		return domain.Actor{}, false
	}
	role := domain.Role(r.Header.Get("X-Actor-Role"))
	actor := domain.Actor{BusinessID: businessID, Role: role}
	switch role {
	case domain.RoleOwner:
	case domain.RoleStaff:
		branchID, err := strconv.ParseInt(r.Header.Get("X-Actor-Branch"), 10, 64)
		if err != nil || branchID <= 0 {
			return domain.Actor{}, false
		}
		actor.BranchID = branchID
	default:
		return domain.Actor{}, false
	}
	return actor, true
}
