package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/auth"
	"github.com/contractlens/backend/internal/config"
	"github.com/contractlens/backend/internal/container"
	"github.com/contractlens/backend/internal/correlation"
	"github.com/contractlens/backend/internal/handler"
	"github.com/contractlens/backend/internal/logging"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/provider/aws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.Info("starting contractlens", "port", cfg.Server.Port)

	provider.AwsFromCredsFunc = aws.FromCreds

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctr, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		logger.Error("failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(middleware.Logger)
	r.Use(apierrors.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", correlation.HeaderName},
		ExposedHeaders:   []string{"Link", correlation.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy", "database": "up", "cache": "disabled"}
		if err := ctr.Ping(pingCtx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "down"
		}
		if c := ctr.Cache(); c != nil {
			body["cache"] = "up"
			if err := c.Ping(pingCtx); err != nil {
				body["cache"] = "down"
			}
		}
		handler.WriteJSON(w, status, body)
	})

	contractHandler := handler.NewContractHandler(ctr.ContractRepository(), logger)
	invoiceHandler := handler.NewInvoiceHandler(ctr.InvoiceRepository(), ctr.ContractRepository(), logger)
	alertHandler := handler.NewAlertHandler(ctr.AlertRepository(), ctr.ContractRepository(), logger)

	var objects handler.ObjectStore
	if s := ctr.DocumentStore(); s != nil {
		objects = s
	}
	documentHandler := handler.NewDocumentHandler(
		objects,
		ctr.DocumentRepository(),
		ctr.ContractRepository(),
		ctr.InvoiceRepository(),
		cfg.Storage.MaxUploadMB,
		logger,
	)
	integrationHandler := handler.NewIntegrationHandler(
		ctr.IntegrationRepository(),
		ctr.SyncLogRepository(),
		ctr.UsageRepository(),
		ctr.IntegrationService(),
		ctr.Providers().Factory(),
		cfg.AWS.PlatformAccountID,
		cfg.AWS.Region,
		logger,
	)
	marketplaceHandler := handler.NewMarketplaceHandler(ctr.Optimizer(), ctr.IntegrationRepository(), ctr.ProductRepository(), logger)
	jobHandler := handler.NewJobHandler(ctr.Scheduler(), logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", contractHandler.List)
			r.Post("/", contractHandler.Create)
			r.Get("/expiring", contractHandler.Expiring)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", contractHandler.Get)
				r.Put("/", contractHandler.Update)
				r.Delete("/", contractHandler.Delete)

				r.Get("/documents", documentHandler.List)
				r.Post("/documents", documentHandler.Upload)
				r.Get("/documents/{documentID}", documentHandler.URL)
				r.Delete("/documents/{documentID}", documentHandler.Delete)

				r.Get("/invoices", invoiceHandler.ListByContract)
				r.Get("/invoice-summary", invoiceHandler.Summary)

				r.Get("/alerts", alertHandler.List)
				r.Put("/alerts", alertHandler.Replace)
				r.Get("/alerts/history", alertHandler.History)
			})
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", invoiceHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", invoiceHandler.Update)
				r.Delete("/", invoiceHandler.Delete)
				r.Get("/document", documentHandler.InvoiceURL)
				r.Post("/document", documentHandler.UploadInvoice)
			})
		})

		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationHandler.List)
			r.Post("/", integrationHandler.Create)
			r.Post("/iam-role", integrationHandler.SetupRole)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", integrationHandler.Delete)
				r.Post("/test", integrationHandler.Test)
				r.Post("/sync", integrationHandler.Sync)
				r.Get("/sync-logs", integrationHandler.SyncLogs)
				r.Get("/usage", integrationHandler.Usage)
				r.Post("/verify-role", integrationHandler.VerifyRole)
			})
		})

		r.Route("/marketplace", func(r chi.Router) {
			r.Post("/search", marketplaceHandler.Search)
			r.Get("/products", marketplaceHandler.Products)
		})
		r.Get("/renewals", marketplaceHandler.Renewals)
		r.Get("/optimizations", marketplaceHandler.Optimizations)

		r.Route("/jobs", func(r chi.Router) {
			r.Use(auth.RequireRole("service_role"))
			r.Get("/", jobHandler.List)
			r.Post("/{name}/run", jobHandler.Run)
		})
	})

	if err := ctr.Start(ctx); err != nil {
		logger.Error("failed to start background jobs", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if err := ctr.Stop(shutdownCtx); err != nil {
			logger.Error("container shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	<-ctx.Done()
	logger.Info("server stopped")
}
