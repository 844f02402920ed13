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

	"orderpay/internal/config"
	"orderpay/internal/database"
	"orderpay/internal/events"
	"orderpay/internal/handler"
	"orderpay/internal/model"
	"orderpay/internal/mw"
	"orderpay/internal/service"
	"orderpay/internal/worker"
)

func main() {
	cfg := config.New()

	intent, err := model.ParseIntent(cfg.Intent)
	if err != nil {
		slog.Error("invalid checkout intent", "error", err)
		os.Exit(1)
	}

	db, err := database.NewDB(context.Background(), cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = events.NewProducer(cfg.KafkaBrokers, "payment-events")
		if err != nil {
			slog.Error("failed to init kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
	}

	// Services
	bearer := service.NewClientCredentials(cfg.PayPalAPIBase, cfg.PayPalClientID, cfg.PayPalSecret)
	paypal := service.NewPayPalClient(cfg.PayPalAPIBase, bearer)
	authSvc := service.NewAuthService(db)
	orderSvc := service.NewOrderService(db)
	tokenSvc := service.NewTokenService(db, paypal)
	subSvc := service.NewSubscriptionService(db)
	executor := service.NewVaultedExecutor(paypal, orderSvc, intent)
	checker := service.NewConsistencyChecker(paypal, tokenSvc, orderSvc, subSvc)

	// Worker
	renewalWorker := worker.NewRenewalWorker(subSvc, orderSvc, tokenSvc, executor, checker, producer, cfg.RenewalInterval)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/user/register", handler.RegisterHandler(authSvc, cfg.JWTSecret))
	r.Post("/api/user/login", handler.LoginHandler(authSvc, cfg.JWTSecret))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/user/orders", handler.CreateOrderHandler(orderSvc, paypal, intent))
		r.Get("/api/user/orders", handler.ListOrdersHandler(orderSvc))
		r.Patch("/api/user/orders/{orderID}", handler.UpdateOrderHandler(orderSvc, paypal))
		r.Post("/api/user/orders/{orderID}/capture", handler.CaptureOrderHandler(orderSvc, tokenSvc, paypal, producer))
		r.Post("/api/user/orders/{orderID}/authorize", handler.AuthorizeOrderHandler(orderSvc, tokenSvc, paypal, producer))

		r.Get("/api/user/payment-tokens", handler.ListTokensHandler(tokenSvc))
		r.Delete("/api/user/payment-tokens/{tokenID}", handler.DeleteTokenHandler(tokenSvc))

		r.Post("/api/user/subscriptions", handler.CreateSubscriptionHandler(subSvc, orderSvc))
		r.Get("/api/user/subscriptions", handler.ListSubscriptionsHandler(subSvc))
		r.Delete("/api/user/subscriptions/{subscriptionID}", handler.CancelSubscriptionHandler(subSvc))
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go renewalWorker.Start(ctx)

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
