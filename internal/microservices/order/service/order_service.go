package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/microservices/order/repository"
)

const (
	maxLines   = 50
	maxPerLine = 100
)

// EventPublisher is the fan-out side effect of admission and transitions.
// Implementations must not return errors into the request path.
type EventPublisher interface {
	OrderCreated(ctx context.Context, order domain.Order)
	StatusChanged(ctx context.Context, order domain.Order, from, to domain.OrderStatus)
}

type OrderServiceInterface interface {
	AdmitOrder(ctx context.Context, in repository.AdmitOrderInput) (domain.Order, error)
	Transition(ctx context.Context, actor domain.Actor, orderID int64, to domain.OrderStatus) (domain.Order, error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
}

type OrderService struct {
	repo   repository.OrderRepositoryInterface
	events EventPublisher
	lg     *zap.SugaredLogger
}

func NewOrderService(repo repository.OrderRepositoryInterface, events EventPublisher, lg *zap.SugaredLogger) OrderServiceInterface {
	return &OrderService{repo: repo, events: events, lg: lg}
}

// AdmitOrder validates what can be validated without the store, then hands
// the order to the admission transaction. The order-created event goes out
// only after the transaction committed.
func (s *OrderService) AdmitOrder(ctx context.Context, in repository.AdmitOrderInput) (domain.Order, error) {
	if err := validateAdmission(in); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.AdmitOrderTx(ctx, in)
	if err != nil {
		return domain.Order{}, err
	}

	s.lg.Infow("order_admitted",
		"order", order.Number, "branch", order.BranchID, "total", order.Total.String())
	// между коммитом и publish есть окно: два заказа одного филиала могут
	// уйти в брокер не в порядке коммита; терминалы несут occurred_at
	s.events.OrderCreated(ctx, order)
	return order, nil
}

func (s *OrderService) Transition(ctx context.Context, actor domain.Actor, orderID int64, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, domain.Invalid("new_status", fmt.Sprintf("unknown status %q", to))
	}

	order, from, err := s.repo.TransitionTx(ctx, actor, orderID, to)
	if err != nil {
		return domain.Order{}, err
	}

	s.lg.Infow("order_transitioned",
		"order", order.Number, "from", from, "to", to, "by", actor.Role)
	s.events.StatusChanged(ctx, order, from, to)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func validateAdmission(in repository.AdmitOrderInput) error {
	if in.BranchID <= 0 {
		return domain.Invalid("branch_id", "required")
	}
	if in.CustomerName == "" {
		return domain.Invalid("customer.name", "required")
	}
	if in.CustomerPhone == "" {
		return domain.Invalid("customer.phone", "required")
	}
	if in.PaymentMethodID <= 0 {
		return domain.Invalid("payment_method_id", "required")
	}
	if in.DeliveryTypeID <= 0 {
		return domain.Invalid("delivery_type_id", "required")
	}
	if len(in.Lines) == 0 {
		return domain.Invalid("lines", "at least one line is required")
	}
	if len(in.Lines) > maxLines {
		return domain.Invalid("lines", fmt.Sprintf("at most %d lines", maxLines))
	}
	seen := make(map[int64]struct{}, len(in.Lines))
	for i, l := range in.Lines {
		if l.ProductID <= 0 {
			return domain.Invalid(fmt.Sprintf("lines[%d].product_id", i), "required")
		}
		if l.Quantity < 1 || l.Quantity > maxPerLine {
			return domain.Invalid(fmt.Sprintf("lines[%d].quantity", i),
				fmt.Sprintf("must be between 1 and %d", maxPerLine))
		}
		if _, dup := seen[l.ProductID]; dup {
			return domain.Invalid(fmt.Sprintf("lines[%d].product_id", i), "duplicate product")
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}
