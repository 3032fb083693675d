package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"medviewer-be/internal/bootstrap"
	"medviewer-be/internal/config"
	"medviewer-be/internal/server"
	"medviewer-be/internal/tracer"
	"medviewer-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Otel)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start Background Services
	log.Println("Background: Starting Loader Service...")
	if err := container.LoaderService.Consume(ctx); err != nil {
		log.Panicf("Loader Service Error: %v", err)
	}
	go func() {
		log.Println("Background: Starting Activity Service...")
		if err := container.ActivityService.Start(); err != nil {
			log.Printf("Background Activity Error: %v", err)
		}
	}()

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
