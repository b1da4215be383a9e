package api

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"comanda/internal/config"
	"comanda/internal/connections/database"
	"comanda/internal/connections/rabbitmq"
	"comanda/internal/connections/redis"
	"comanda/internal/httpx"
	cataloghandlers "comanda/internal/microservices/catalog/handlers"
	catalogrepo "comanda/internal/microservices/catalog/repository"
	catalogservice "comanda/internal/microservices/catalog/service"
	"comanda/internal/microservices/notifier"
	orderhandlers "comanda/internal/microservices/order/handlers"
	orderrepo "comanda/internal/microservices/order/repository"
	orderservice "comanda/internal/microservices/order/service"
)

// Run wires and starts the api-service: catalog reads, catalog management,
// order admission, status transitions.
func Run(ctx context.Context, port int, cfg config.App, lg *zap.SugaredLogger) error {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mq, err := rabbitmq.Dial(cfg.Rabbit)
	if err != nil {
		return err
	}
	defer mq.Close()
	if err := mq.DeclareTopology(); err != nil {
		return err
	}

	// кэш не критичен для старта: без него каталог ходит в базу напрямую
	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		lg.Warnw("redis_unavailable_at_startup", "addr", cfg.Redis.Addr, "err", err)
	}
	defer rdb.Close()

	events := notifier.NewPublisher(mq, lg)

	catRepo := catalogrepo.NewCatalogRepository(db)
	catCache := catalogrepo.NewSnapshotCache(rdb)
	catService := catalogservice.NewCatalogService(catRepo, catCache, lg)
	catHandler := cataloghandlers.NewCatalogHandler(catService, lg)

	ordRepo := orderrepo.NewOrderRepository(db, cfg.Admission)
	ordService := orderservice.NewOrderService(ordRepo, events, lg)
	ordHandler := orderhandlers.NewOrderHandler(ordService, lg)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /branches/{slug}", catHandler.GetSnapshot)
	mux.HandleFunc("GET /branches/{slug}/quotes", catHandler.GetQuotes)
	mux.HandleFunc("GET /branches/{slug}/catalog", catHandler.GetMerged)
	mux.HandleFunc("PUT /branches/{slug}/products/{id}/static", catHandler.UpdateProductStatic)
	mux.HandleFunc("PUT /branches/{slug}/products/{id}/pricing", catHandler.SetProductPricing)
	mux.HandleFunc("PUT /branches/{slug}/products/{id}/active", catHandler.SetProductActive)

	mux.HandleFunc("POST /orders", ordHandler.Create)
	mux.HandleFunc("GET /orders/{id}", ordHandler.Get)
	mux.HandleFunc("PATCH /orders/{id}/status", ordHandler.Transition)

	srv := httpx.New(":"+strconv.Itoa(port), mux)
	lg.Infow("api_service_listening", "port", port)
	return srv.Run(ctx)
}
