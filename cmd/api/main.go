package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credinor/crm-backend/internal/cache"
	"github.com/credinor/crm-backend/internal/infra/database"
	"github.com/credinor/crm-backend/internal/infra/http/handlers"
	"github.com/credinor/crm-backend/internal/infra/http/middleware"
	"github.com/credinor/crm-backend/internal/infra/integration/manychat"
	"github.com/credinor/crm-backend/internal/infra/integration/supabase"
	"github.com/credinor/crm-backend/internal/infra/mail"
	"github.com/credinor/crm-backend/internal/infra/queue"
	"github.com/credinor/crm-backend/internal/infra/worker"
	"github.com/credinor/crm-backend/internal/usecase"
)

func main() {
	godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Base de datos (sync_logs)
	db, err := database.NewDBConnection(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("❌ No se pudo conectar a Postgres: %v", err)
	}
	defer db.Close()

	// 2. RabbitMQ (eventos inbound de Manychat)
	rabbitMQ, err := queue.NewRabbitMQ(
		envOr("RABBITMQ_USER", "guest"),
		envOr("RABBITMQ_PASS", "guest"),
		envOr("RABBITMQ_HOST", "localhost"),
		envOr("RABBITMQ_PORT", "5672"),
	)
	if err != nil {
		log.Fatalf("❌ No se pudo conectar a RabbitMQ: %v", err)
	}
	defer rabbitMQ.Conn.Close()
	defer rabbitMQ.Ch.Close()

	// 3. Caché en memoria con sweep periódico
	cacheService := cache.NewService(cache.NewStore())
	cacheService.OnLookup = middleware.RecordCacheLookup
	cacheService.StartSweep(ctx, time.Minute)

	// 4. Adapters
	leadStore := supabase.NewClient(
		os.Getenv("SUPABASE_URL"),
		os.Getenv("SUPABASE_API_KEY"),
		cacheService,
	)

	manychatClient, err := manychat.NewClient(os.Getenv("MANYCHAT_API_KEY"))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer manychatClient.Close()

	alertSender := mail.NewAlertSender(
		os.Getenv("MAIL_HOST"),
		envInt("MAIL_PORT", 587),
		os.Getenv("MAIL_USER"),
		os.Getenv("MAIL_PASS"),
		envOr("ALERT_TO", "operaciones@credinor.com.ar"),
	)

	syncLogRepo := &database.SyncLogRepository{DB: db}

	// 5. Servicio de sincronización
	syncService := usecase.NewSyncService(leadStore, syncLogRepo, manychatClient, alertSender)
	syncService.OnAttempt = middleware.RecordSyncAttempt

	// 6. Workers
	producer := queue.NewProducer(rabbitMQ.Conn, rabbitMQ.Ch)

	inboundWorker := queue.NewWorker(rabbitMQ.Ch, syncService)
	go inboundWorker.Start(queue.QueueName)

	maintenance := worker.NewMaintenanceWorker(syncService, syncLogRepo)
	go maintenance.Start(ctx)

	// 7. Handlers
	leadHandler := handlers.NewLeadHandler(leadStore, syncService)
	syncHandler := handlers.NewSyncHandler(syncService, cacheService)
	webhookHandler := handlers.NewWebhookHandler(producer, os.Getenv("MANYCHAT_WEBHOOK_TOKEN"))
	healthHandler := handlers.NewHealthHandler(db, rabbitMQ.Conn)

	// 8. Router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Manychat-Token"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/leads", func(r chi.Router) {
			r.Get("/", leadHandler.List)
			r.Post("/", leadHandler.Create)
			r.Get("/{id}", leadHandler.Get)
			r.Patch("/{id}", leadHandler.Update)
			r.Delete("/{id}", leadHandler.Delete)
			r.Get("/{id}/eventos", leadHandler.Events)
			r.Post("/{id}/sync", syncHandler.SyncNow)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/retry", syncHandler.Retry)
			r.Get("/logs", syncHandler.Logs)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", syncHandler.CacheStats)
			r.Post("/invalidate", syncHandler.CacheInvalidate)
		})
	})

	r.Post("/webhook/manychat", webhookHandler.Handle)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	port := ":" + envOr("PORT", "8080")
	log.Printf("🔥 CRM Credinor corriendo en el puerto %s", port)
	http.ListenAndServe(port, r)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
