package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts_api/internal/api"
	"accounts_api/internal/app/service"
	"accounts_api/internal/app/worker"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/repository"
	"accounts_api/internal/platform/config"
	"accounts_api/internal/platform/database"
	"accounts_api/internal/platform/queue"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)

	// 6. Initialize Services
	policy := security.PasswordPolicy{
		MinLength:    config.AppConfig.PasswordMinLength,
		RequireMixed: config.AppConfig.PasswordRequireMixed,
	}
	resetLedger := service.NewResetLedger(userRepo, config.AppConfig.ResetTokenTTL)
	mailService := service.NewMailService(queue.RDB, config.AppConfig.MailQueueName)
	authService := service.NewAuthService(userRepo, resetLedger, mailService, policy)
	userService := service.NewUserService(userRepo)

	// 7. Initialize Mailer Worker (as a goroutine)
	mailerWorker := worker.NewMailerWorker(queue.RDB)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go mailerWorker.Start(workerCtx)
	fmt.Println("Mailer worker started.")

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(authService, userService, userRepo)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	workerCancel() // Signal worker to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
