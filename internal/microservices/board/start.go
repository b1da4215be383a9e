package board

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"comanda/internal/config"
	"comanda/internal/connections/rabbitmq"
	"comanda/internal/httpx"
	"comanda/internal/microservices/board/handlers"
	"comanda/internal/microservices/notifier"
)

// Run starts the board-gateway: the bridge from the broker to staff SSE
// terminals.
func Run(ctx context.Context, port int, cfg config.App, lg *zap.SugaredLogger) error {
	mq, err := rabbitmq.Dial(cfg.Rabbit)
	if err != nil {
		return err
	}
	defer mq.Close()
	if err := mq.DeclareTopology(); err != nil {
		return err
	}

	hub := notifier.NewHub()

	consumeErr := make(chan error, 1)
	go func() { consumeErr <- consume(ctx, mq, hub, lg) }()

	mux := http.NewServeMux()
	stream := handlers.NewStreamHandler(hub, lg)
	mux.HandleFunc("GET /branches/{id}/stream", stream.Stream)

	srv := httpx.New(":"+strconv.Itoa(port), mux)
	lg.Infow("board_gateway_listening", "port", port)

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()

	select {
	case err := <-consumeErr:
		return err
	case err := <-srvErr:
		return err
	}
}
