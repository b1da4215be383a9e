package board

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"comanda/internal/connections/rabbitmq"
	"comanda/internal/domain"
	"comanda/internal/microservices/notifier"
)

// consume drains the board queue into the hub. Broker redelivery on nack
// plus the hub's blocking delivery gives connected terminals at-least-once.
func consume(ctx context.Context, mq *rabbitmq.Client, hub *notifier.Hub, lg *zap.SugaredLogger) error {
	msgs, ch, err := mq.Consume(rabbitmq.BoardQueue, "board-gateway", 16)
	if err != nil {
		return err
	}
	defer ch.Close()

	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-closeCh:
			if e != nil {
				lg.Errorw("amqp_channel_closed", "code", e.Code, "reason", e.Reason)
			}
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil || ev.BranchID <= 0 || ev.Type == "" {
				// нерепарабельный формат — в DLQ
				lg.Errorw("malformed_event", "message_id", d.MessageId, "err", err)
				_ = d.Nack(false, false)
				continue
			}
			hub.Publish(ev.BranchID, ev)
			_ = d.Ack(false)
			lg.Debugw("event_delivered", "branch", ev.BranchID, "type", ev.Type, "order", ev.Order.Number)
		}
	}
}
