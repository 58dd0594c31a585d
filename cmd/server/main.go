package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/config"
	"github.com/example/distributor-server/internal/database"
	"github.com/example/distributor-server/internal/logger"
	"github.com/example/distributor-server/internal/routes"
	"github.com/example/distributor-server/internal/services"
)

func main() {
	cfg := config.Load()

	zapLog, err := logger.Init(cfg.LogPath, cfg.Debug)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zapLog.Sync()

	db := database.Connect(cfg.DatabaseURL)

	notifier := services.NewKafkaNotifier(cfg.KafkaBootstrapServers, cfg.SMSTopic, zapLog)
	defer notifier.Close()

	keycloak := services.NewKeycloakService(cfg, zapLog)

	app := fiber.New(fiber.Config{
		AppName:      "Distributor Backend",
		ErrorHandler: apperrors.ErrorHandler(zapLog),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, db, cfg, keycloak, notifier, zapLog)

	if _, err := keycloak.AdminAccessToken(); err != nil {
		zapLog.Warn("keycloak admin token warm-up failed", zap.Error(err))
	}

	zapLog.Info("starting server", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		zapLog.Fatal("fiber.Listen error", zap.Error(err))
	}
}
