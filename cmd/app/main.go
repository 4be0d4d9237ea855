package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/livecart/lc-checkout/config"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/checkout"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/item"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/order"
	"github.com/livecart/lc-checkout/internal/module/buyerapp/paygate"
	"github.com/livecart/lc-checkout/internal/module/sweeper"
	"github.com/livecart/lc-checkout/internal/pkg/clock"
	"github.com/livecart/lc-checkout/internal/pkg/jwt"
	internalMiddleware "github.com/livecart/lc-checkout/internal/pkg/middleware"
	"github.com/livecart/lc-checkout/internal/pkg/session"
	"github.com/livecart/lc-checkout/migrations"
	"github.com/livecart/lc-checkout/pkg/applogger"
	"github.com/livecart/lc-checkout/pkg/gctasks"
	"github.com/livecart/lc-checkout/pkg/kafka"
	"github.com/livecart/lc-checkout/pkg/middleware"
	"github.com/livecart/lc-checkout/pkg/monitoring"
	"github.com/livecart/lc-checkout/pkg/postgresql"
	"github.com/livecart/lc-checkout/pkg/pubsub"
	"github.com/livecart/lc-checkout/pkg/redis"
	"github.com/livecart/lc-checkout/pkg/server"
	"github.com/livecart/lc-checkout/pkg/validator"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := config.Get()
	logger := applogger.GetLogrus()

	mon := monitoring.NewOpenTelemetry(
		logger,
		c.Application.Name,
		c.Application.Environment,
		c.GCP.ProjectID,
	)
	mon.Start(ctx)

	validate := validator.Get()

	hc := http.DefaultClient

	jsonWebToken, err := jwt.NewJSONWebToken([]byte(c.JWT.PrivateKey), []byte(c.JWT.PublicKey))
	if err != nil {
		logger.WithError(err).Fatal("invalid jwt key material")
	}

	psqldb := postgresql.GetDatabase()
	if err := psqldb.Ping(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}
	if c.Postgres.AutoMigrate {
		if err := migrations.Apply(ctx, psqldb); err != nil {
			logger.WithError(err).Fatal("apply database migrations")
		}
	}

	publisher := pubsub.PublisherFromConfluentKafkaProducer(logger, kafka.NewProducer())

	rc := redis.GetClient()
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	var cloudTask gctasks.Client
	if c.GCP.ProjectID != "" {
		cloudTask = gctasks.NewGCTasks(logger, c.GCP.ProjectID, c.GCP.TasksLocation, c.GCP.ServiceAccount)
	}

	buyerSessionStore := session.NewRedisSessionStore(logger, rc, "buyerapp:session")
	buyerSessionMiddleware := internalMiddleware.NewBuyerSessionMiddleware(jsonWebToken, buyerSessionStore)
	operatorSessionStore := session.NewRedisSessionStore(logger, rc, "operatorapp:session")
	operatorSessionMiddleware := internalMiddleware.NewOperatorSessionMiddleware(jsonWebToken, operatorSessionStore)

	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(c.Application.Name),
		middleware.HTTPResponseTraceInjection,
		middleware.NewHTTPRequestLogger(logger, c.Application.Debug, http.StatusInternalServerError).Middleware,
	)

	itemRepo := item.NewItemRepository(logger, psqldb)
	inventoryRepo := item.NewInventoryRepository(logger, psqldb)
	orderRepo := order.NewOrderRepository(logger, psqldb)
	intentRepo := checkout.NewIntentRepository(logger, psqldb)
	compensationRepo := checkout.NewCompensationRepository(logger, psqldb)
	paygateRepo := paygate.NewPaygateRepository(c.Paygate.BaseURL, c.Paygate.APIKey, c.Paygate.WebhookSecret, logger, hc)

	checkoutUseCase := checkout.NewCheckoutUseCase(checkout.CheckoutUseCaseProperty{
		Logger:                 logger,
		Clock:                  clock.NewSystem(),
		Timeout:                c.Application.Timeout,
		BaseURL:                c.Application.BaseURL,
		IntentTTL:              c.Checkout.IntentTTL,
		LockTTL:                c.Checkout.LockTTL,
		SweepBatchSize:         c.Checkout.SweepBatchSize,
		ItemRepository:         itemRepo,
		InventoryRepository:    inventoryRepo,
		IntentRepository:       intentRepo,
		OrderRepository:        orderRepo,
		CompensationRepository: compensationRepo,
		PaygateRepository:      paygateRepo,
		Publisher:              publisher,
		CloudTask:              cloudTask,
	})
	checkout.InitHTTPHandler(router, buyerSessionMiddleware, operatorSessionMiddleware, validate, checkoutUseCase, paygateRepo)

	expirySweeper := sweeper.New(logger, c.Checkout.SweepInterval, checkoutUseCase)
	go expirySweeper.Run(ctx)

	handler := middleware.SetChain(
		router,
		cors.New(cors.Options{
			AllowedOrigins:   c.CORS.AllowedOrigins,
			AllowedMethods:   c.CORS.AllowedMethods,
			AllowedHeaders:   c.CORS.AllowedHeaders,
			ExposedHeaders:   c.CORS.ExposedHeaders,
			MaxAge:           c.CORS.MaxAge,
			AllowCredentials: c.CORS.AllowCredentials,
		}).Handler,
	)

	srv := &server.Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", c.Application.Port),
			Handler: handler,
		},
		Logger: logger,
	}

	go func() {
		srv.ListenAndServe()
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	<-sigterm

	cancel()
	srv.Shutdown(context.Background())
	publisher.Close()
	psqldb.Close()
	rc.Close()
	if cloudTask != nil {
		cloudTask.Close()
	}
	mon.Stop(context.Background())
}
