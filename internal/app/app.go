package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"courierdesk_backend/internal/config"
	"courierdesk_backend/internal/email"
	"courierdesk_backend/internal/handlers"
	"courierdesk_backend/internal/logger"
	"courierdesk_backend/internal/middleware"
	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/ratelimit"
	"courierdesk_backend/internal/repositories"
	"courierdesk_backend/internal/routes"
	"courierdesk_backend/internal/services"
	"courierdesk_backend/internal/validator"
	"courierdesk_backend/internal/workers"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := gormDB.AutoMigrate(&models.User{}, &models.VerificationCode{}); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("Redis unavailable", "error", err, "addr", cfg.Redis.Addr)
	}
	cancel()
	logger.Info("Redis connected", "addr", cfg.Redis.Addr)

	if err := seedFirstAdmin(gormDB, cfg); err != nil {
		logger.Fatal("Failed to seed first admin user", "error", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	ginRouter := SetupRouter(cfg, gormDB, rdb, workerCtx)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    address,
		Handler: ginRouter,
	}

	go func() {
		logger.Info("Server starting", "address", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
	if err := rdb.Close(); err != nil {
		logger.Error("Failed to close redis client", "error", err)
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	logger.Info("Server stopped")
}

func SetupRouter(cfg *config.Config, gormDB *gorm.DB, rdb *redis.Client, workerCtx context.Context) *gin.Engine {
	userRepo := repositories.NewUserRepository(gormDB)
	codeRepo := repositories.NewVerificationCodeRepository(gormDB)

	limiter := ratelimit.New(rdb, ratelimit.Policy{
		MaxAttempts:     cfg.RateLimit.MaxAttempts,
		Window:          cfg.RateLimit.Window,
		StrictThreshold: cfg.RateLimit.StrictThreshold,
		StrictBlock:     cfg.RateLimit.StrictBlock,
		StoreTimeout:    cfg.RateLimit.StoreTimeout,
	})

	smtpConfig := &email.SMTPConfig{
		Host:      cfg.Email.SMTPHost,
		Port:      cfg.Email.SMTPPort,
		Username:  cfg.Email.SMTPUsername,
		Password:  cfg.Email.SMTPPassword,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
	}
	var emailProvider email.Provider
	if smtpConfig.Enabled() {
		emailProvider = email.NewSMTPProvider(smtpConfig)
		logger.Info("SMTP email provider initialized", "host", smtpConfig.Host)
	} else {
		emailProvider = email.NewLogProvider()
		logger.Warn("SMTP is not configured, verification codes will be logged")
	}

	tokenTTL := time.Duration(cfg.JWT.TTL) * time.Hour
	serviceContainer := services.NewServiceContainer(services.ContainerDeps{
		UserRepo:      userRepo,
		CodeRepo:      codeRepo,
		Limiter:       limiter,
		EmailProvider: emailProvider,
		JWTSecret:     cfg.JWT.Secret,
		TokenTTL:      tokenTTL,
	})

	v := validator.New()
	baseHandler := handlers.NewBaseHandler(v)
	appHandlers := &handlers.AppHandlers{
		AuthHandler: handlers.NewAuthHandler(
			baseHandler,
			serviceContainer.AuthService,
			serviceContainer.TokenService,
			limiter,
			handlers.CookieSettings{
				Name:   cfg.Cookie.Name,
				Domain: cfg.Cookie.Domain,
				Secure: cfg.Cookie.Secure,
				MaxAge: tokenTTL,
			},
		),
		AdminHandler:  handlers.NewAdminHandler(baseHandler, serviceContainer.UserService),
		HealthHandler: handlers.NewHealthHandler(gormDB, rdb),
	}

	cleanupWorker := workers.NewCleanupWorker(codeRepo, 1*time.Hour)
	cleanupWorker.Start(workerCtx)

	ginRouter := initializeGinRouter(cfg)
	routes.RegisterRoutes(ginRouter, appHandlers, serviceContainer.TokenService, cfg.Cookie.Name)
	return ginRouter
}

func initializeGinRouter(cfg *config.Config) *gin.Engine {
	if strings.EqualFold(cfg.Server.Env, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(middleware.RequestIDMiddleware())
	ginRouter.Use(middleware.LoggingMiddleware())
	if len(cfg.Server.AllowedOrigins) > 0 {
		ginRouter.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	}
	return ginRouter
}

// seedFirstAdmin создает первого super_admin, если его еще нет.
// Без заданных учетных данных шаг пропускается.
func seedFirstAdmin(db *gorm.DB, cfg *config.Config) error {
	adminEmail := strings.ToLower(strings.TrimSpace(cfg.FirstAdminEmail))
	adminPassword := cfg.FirstAdminPassword

	if adminEmail == "" || adminPassword == "" {
		logger.Warn("FIRST_ADMIN_EMAIL or FIRST_ADMIN_PASSWORD is not set. Skipping admin seeding.")
		return nil
	}

	var adminUser models.User
	result := db.Where("email = ?", adminEmail).First(&adminUser)
	if result.Error == nil {
		logger.Info("Admin user already exists. Skipping creation.", "email", adminEmail)
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check for admin user: %w", result.Error)
	}

	logger.Warn("No admin user found with specified email. Creating first admin...", "email", adminEmail)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	newAdmin := &models.User{
		Email:           adminEmail,
		Name:            "Administrator",
		PasswordHash:    string(hashedPassword),
		Role:            models.UserRoleSuperAdmin,
		IsEmailVerified: true,
		IsActive:        true,
	}

	if err := db.Create(newAdmin).Error; err != nil {
		return fmt.Errorf("failed to create admin user in database: %w", err)
	}

	logger.Info("First admin user created", "email", adminEmail)
	return nil
}
