package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"orderbridge/internal/config"
	"orderbridge/internal/database"
	"orderbridge/internal/fulfillment"
	"orderbridge/internal/handler"
	"orderbridge/internal/mw"
	"orderbridge/internal/service"
	"orderbridge/internal/store"
	"orderbridge/internal/worker"
)

func main() {
	cfg := config.New()

	primaryDB, err := database.NewDB(cfg.PrimaryDatabaseURI)
	if err != nil {
		slog.Error("failed to connect to primary DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(context.Background(), primaryDB)

	fulfillmentDB, err := database.NewDB(cfg.FulfillmentDatabaseURI)
	if err != nil {
		slog.Error("failed to connect to fulfillment DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(context.Background(), fulfillmentDB)

	if err := database.InitPrimarySchema(primaryDB); err != nil {
		slog.Error("failed to init primary schema", "error", err)
		os.Exit(1)
	}
	if err := database.InitFulfillmentSchema(fulfillmentDB); err != nil {
		slog.Error("failed to init fulfillment schema", "error", err)
		os.Exit(1)
	}

	policy := service.PayoutPolicy{
		Rate:        cfg.PayoutRate,
		FloorCents:  cfg.PayoutFloorCents,
		CeilingRate: cfg.PayoutCeilingRate,
	}

	// Fulfillment-side plumbing: classified store client, resolver,
	// schema-adaptive writer.
	fstore := store.NewPG(fulfillmentDB)
	writer := fulfillment.NewWriter(fstore, fulfillment.NewStoreResolver(fstore))

	// Services
	orderSvc := service.NewOrderLedger(primaryDB, policy, cfg.MinSubtotalCents)
	recipientSvc := service.NewRecipientDirectory(fstore)
	jobSvc := service.NewJobStore(fstore, writer)
	traceSvc := service.NewTraceRecorder(primaryDB)
	paymentClient := service.NewHTTPPaymentClient(cfg.PaymentAddress, cfg.PaymentAPIKey)
	geocodeClient := service.NewGeocodeClient(cfg.GeocoderAddress)
	smsClient := service.NewSMSClient(cfg.SMSGatewayAddress)
	promos := service.NewPromoList(cfg.PromoCodes)

	checkoutSvc := service.NewCheckout(orderSvc, recipientSvc, jobSvc, paymentClient, promos, traceSvc, smsClient, cfg.SequenceID, cfg.StepID)
	scheduleSvc := service.NewScheduleSync(orderSvc, jobSvc, recipientSvc, geocodeClient, smsClient, policy, cfg.SequenceID, cfg.StepID)
	payoutSvc := service.NewPayoutLedger(fstore, orderSvc, policy)

	operatorAuth, err := service.NewOperatorAuth(cfg.OperatorLogin, cfg.OperatorPassword)
	if err != nil {
		slog.Error("failed to set up operator auth", "error", err)
		os.Exit(1)
	}

	// Worker
	sessionWorker := worker.NewSessionWorker(orderSvc, paymentClient)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/checkout", handler.CheckoutHandler(checkoutSvc))
	r.Post("/api/schedule", handler.ScheduleHandler(scheduleSvc))
	r.Post("/api/ops/login", handler.OperatorLoginHandler(operatorAuth, cfg.JWTSecret))

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(mw.OperatorAuth(cfg.JWTSecret))

		r.Post("/api/ops/jobs/{jobID}/complete", handler.CompleteJobHandler(jobSvc, payoutSvc))
		r.Get("/api/ops/trace/{traceID}", handler.TraceHandler(traceSvc))
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sessionWorker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop worker
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
