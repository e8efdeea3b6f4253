package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CrossPost-MediaBridg/Publish-Service/cmd/middleware"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/api"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/api/handlers"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/configuration"
	natsroutes "github.com/CrossPost-MediaBridg/Publish-Service/internal/nats"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	cfg := configuration.Load()

	tracer.Start(tracer.WithService("publish-service"))
	defer tracer.Stop()

	// Stores: Postgres + MinIO in production, in-memory fallback for local
	// development when neither is reachable.
	var refs storage.ReferenceStore
	var jobs storage.UploadJobStore
	var payloads storage.PayloadStore

	memory := storage.NewMemoryStore()
	refs, jobs, payloads = memory, memory, memory

	if pg, err := storage.ConnectPostgres(cfg.Database.ConnectionString()); err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL: %v", err)
		log.Println("Falling back to in-memory metadata store...")
	} else {
		refs, jobs = pg, pg
	}

	if err := services.InitializeMinio(
		cfg.MinIO.Endpoint,
		cfg.MinIO.AccessKey,
		cfg.MinIO.SecretKey,
		cfg.MinIO.BucketName,
		cfg.MinIO.UseSSL,
	); err != nil {
		log.Printf("Warning: Failed to initialize MinIO: %v", err)
		log.Println("Falling back to in-memory payload store...")
	} else {
		payloads = services.GetMinioService()
		handlers.InitHealth(services.GetMinioService().CheckConnection)
	}

	// NATS: domain events out, cleanup/scan triggers in.
	if _, _, err := services.ConnectNATS(cfg.NATSURL); err != nil {
		log.Printf("Warning: Failed to connect to NATS: %v", err)
		log.Println("Continuing without event publishing...")
	} else {
		handlers.InitEventHandlers(refs, payloads, cfg.CLAMAVURL)
		if err := natsroutes.SubscribeAll(natsroutes.Routes()); err != nil {
			log.Printf("Warning: Failed to subscribe NATS routes: %v", err)
		}
	}
	defer services.CloseNATS()

	registry := platforms.NewRegistry()
	if os.Getenv("DEV_LOOPBACK_ADAPTERS") == "true" {
		for _, req := range platforms.DefaultRequirements {
			registry.Register(platforms.NewLoopbackAdapter(req.Platform))
		}
		log.Println("Registered loopback adapters for all platforms (dev mode)")
	}

	staging := services.NewStagingService(refs, payloads, platforms.DefaultRequirements)
	pairing := services.NewPairing(refs)
	orchestrator := services.NewOrchestrator(
		refs, jobs, payloads, pairing, registry,
		cfg.Upload.ChunkSizeBytes, cfg.Upload.Timeout,
	)
	handlers.Init(staging, pairing, orchestrator)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := services.NewSweeper(
		refs, jobs, payloads,
		cfg.Sweep.Interval, cfg.Sweep.UsedRetention, cfg.Sweep.StuckCeiling,
	)
	sweeper.Start(sweepCtx)

	auth := middleware.DevAuth()
	if cfg.KeycloakUrl != "" {
		if err := middleware.InitAuth(cfg.KeycloakUrl); err != nil {
			log.Fatalf("Failed to initialize OIDC auth: %v", err)
		}
		auth = middleware.RequireAuth()
	} else {
		log.Println("Warning: no KEYCLOAK_URL configured, using X-User-ID dev auth")
	}

	r := gin.Default()
	r.Use(gintrace.Middleware("publish-service"))
	api.RegisterRoutes(r, auth)

	setupGracefulShutdown(stopSweeper, sweeper, orchestrator)

	log.Printf("Server starting on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupGracefulShutdown(stopSweeper context.CancelFunc, sweeper *services.Sweeper, orchestrator *services.Orchestrator) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Shutting down gracefully...")
		stopSweeper()
		sweeper.Wait()
		// Let in-flight uploads reach a persisted state before exit.
		orchestrator.Wait()
		os.Exit(0)
	}()
}
