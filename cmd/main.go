package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"expense-approval-service/internal/config"
	"expense-approval-service/internal/events"
	"expense-approval-service/internal/handlers"
	"expense-approval-service/internal/jobs"
	"expense-approval-service/internal/middleware"
	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
	"expense-approval-service/internal/seeders"
	"expense-approval-service/internal/services"
)

// @title Expense Approval API
// @version 1.0.0
// @description Multi-level approval routing engine for expense reports

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8094
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	// Directory tables (users, projects, cost centres) are owned by other
	// services and deliberately excluded from migration here.
	logger.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.ApprovalMatrix{},
		&models.EmployeeApprovalProfile{},
		&models.ApproverMapping{},
		&models.ApprovalRule{},
		&models.ApprovalInstance{},
		&models.Approver{},
		&models.ApprovalHistory{},
		&models.ApprovalAuditLog{},
	); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	if err := seeders.SeedDefaults(db); err != nil {
		logger.Warnf("Failed to seed default configuration: %v", err)
	}

	approvalRepo := repository.NewApprovalRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	// Event publisher is optional; the service runs without NATS.
	var dispatcher services.SideEffectDispatcher
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
		} else {
			logger.Info("Event publisher initialized")
			dispatcher = publisher
			defer publisher.Close()
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	approvalService := services.NewApprovalService(approvalRepo, directoryRepo, dispatcher, logger)

	approvalHandler := handlers.NewApprovalHandler(approvalService)
	adminHandler := handlers.NewAdminHandler(approvalRepo)

	reminderJob := jobs.NewReminderJob(approvalRepo, dispatcher, logger, cfg.ReminderInterval, cfg.ReminderAfter)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	go reminderJob.Start(jobCtx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	api.Use(middleware.TenantMiddleware())

	// Approval lifecycle endpoints
	{
		api.POST("/approvals/submit", approvalHandler.Submit)
		api.POST("/approvals/preview", approvalHandler.Preview)
		api.GET("/approvals/pending", approvalHandler.ListPending)
		api.GET("/approvals/:reportId", approvalHandler.GetStatus)
		api.GET("/approvals/:reportId/audit", approvalHandler.GetAuditTrail)
		api.POST("/approvals/:reportId/approve", approvalHandler.Approve)
		api.POST("/approvals/:reportId/reject", approvalHandler.Reject)
		api.POST("/approvals/:reportId/request-changes", approvalHandler.RequestChanges)
	}

	// Admin endpoints for routing configuration
	admin := api.Group("/admin")
	{
		admin.GET("/matrices", adminHandler.ListMatrices)
		admin.POST("/matrices", adminHandler.CreateMatrix)
		admin.PUT("/matrices/:id", adminHandler.UpdateMatrix)
		admin.GET("/rules", adminHandler.ListRules)
		admin.POST("/rules", adminHandler.CreateRule)
		admin.PUT("/rules/:id", adminHandler.UpdateRule)
		admin.GET("/profiles/:employeeId", adminHandler.GetProfile)
		admin.PUT("/profiles", adminHandler.UpsertProfile)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := cfg.Port
	if port == "" {
		port = "8094"
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Expense approval service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	reminderJob.Stop()
	logger.Info("Reminder job stopped")
}
