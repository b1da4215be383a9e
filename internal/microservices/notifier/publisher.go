package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comanda/internal/connections/rabbitmq"
	"comanda/internal/domain"
)

// Publisher pushes committed order events into the branch.events exchange.
// It is fire-and-forget with respect to the request path: a broker failure
// is an operational fault to log, never a reason to fail the admission or
// transition that already committed.
type Publisher struct {
	mq *rabbitmq.Client
	lg *zap.SugaredLogger
}

func NewPublisher(mq *rabbitmq.Client, lg *zap.SugaredLogger) *Publisher {
	return &Publisher{mq: mq, lg: lg}
}

func (p *Publisher) OrderCreated(ctx context.Context, order domain.Order) {
	p.publish(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventOrderCreated,
		BranchID:   order.BranchID,
		Order:      order,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) StatusChanged(ctx context.Context, order domain.Order, from, to domain.OrderStatus) {
	p.publish(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventStatusChanged,
		BranchID:   order.BranchID,
		Order:      order,
		OldStatus:  from,
		NewStatus:  to,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, ev domain.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.lg.Errorw("event_marshal_failed", "type", ev.Type, "order", ev.Order.Number, "err", err)
		return
	}

	// коммит уже случился: отмена исходного запроса не должна глушить событие
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf("branch.%d.%s", ev.BranchID, ev.Type)
	if err := p.mq.Publish(pctx, rabbitmq.BranchEventsExchange, key, body, ev.ID); err != nil {
		p.lg.Errorw("event_publish_failed", "key", key, "order", ev.Order.Number, "err", err)
		return
	}
	p.lg.Debugw("event_published", "key", key, "order", ev.Order.Number)
}
