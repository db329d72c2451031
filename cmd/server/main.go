package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rewardloop/backend/internal/audit"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/database"
	"github.com/rewardloop/backend/internal/handlers"
	mW "github.com/rewardloop/backend/internal/middleware"
	"github.com/rewardloop/backend/internal/services"
)

func main() {
	config.Init(".env")
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.InitDatabase()
	defer func() {
		if err := database.CloseDB(); err != nil {
			log.Printf("[DATABASE] Close failed: %v", err)
		}
	}()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger()
	awardService := services.NewAwardService(db, cfg.Points, auditLogger)
	redemptionService := services.NewRedemptionService(db, cfg.Points, auditLogger)
	rankingService := services.NewRankingService(db, cfg.Points, cfg.Ranking, auditLogger)

	pointsHandler := handlers.NewPointsHandler(awardService)
	redemptionHandler := handlers.NewRedemptionHandler(redemptionService)
	adminHandler := handlers.NewAdminHandler(awardService, redemptionService, rankingService, cfg.Points.Location)

	if cfg.Ranking.Enabled {
		scheduler := services.NewRankingScheduler(rankingService, redisClient, cfg.Points, cfg.Ranking)
		scheduler.Start(ctx)
		log.Printf("[RANKING] Scheduler started, interval %v", cfg.Ranking.Interval)
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		report := database.Health(r.Context(), db, redisClient)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Auth(cfg.JWTSecret))

		r.Post("/points/award", pointsHandler.Award)
		r.Post("/points/product-clicks", pointsHandler.ProductClicks)
		r.Get("/points/limits/{limitType}", pointsHandler.LimitStatus)
		r.Get("/points/history", pointsHandler.History)

		r.Post("/rewards/{rewardId}/redeem", redemptionHandler.Redeem)
		r.Get("/redemptions", redemptionHandler.List)

		r.Route("/admin", func(r chi.Router) {
			r.Use(mW.RequireAdmin)

			r.Post("/redemptions/{id}/decide", adminHandler.Decide)
			r.Post("/points/award", adminHandler.AwardFor)
			r.Post("/points/grant", adminHandler.Grant)
			r.Post("/ranking/run", adminHandler.RunRanking)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
