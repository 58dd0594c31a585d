package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/distributor-server/internal/config"
	"github.com/example/distributor-server/internal/handlers"
	"github.com/example/distributor-server/internal/middleware"
	"github.com/example/distributor-server/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config,
	auth handlers.AuthService, notifier services.Notifier, log *zap.Logger) {

	tokenService := services.NewTokenService(db, cfg.ResetTokenTTL)

	employeeHandler := handlers.NewEmployeeHandler(db, cfg, auth, tokenService, notifier, log)
	distributorHandler := handlers.NewDistributorHandler(db)

	api := app.Group("/api/v1")

	employee := api.Group("/employee")
	employee.Post("/", middleware.AuthRole(cfg, "create_employee"), employeeHandler.Create)
	employee.Post("/token_login", employeeHandler.Login)
	employee.Post("/token_refresh", employeeHandler.RefreshToken)
	employee.Post("/change-password", middleware.AuthRole(cfg, "change_password"), employeeHandler.ChangePassword)
	employee.Post("/request-reset", employeeHandler.RequestPasswordReset)
	employee.Post("/reset-password", employeeHandler.ResetPassword)
	employee.Post("/resend-token", employeeHandler.ResendToken)

	accounts := employee.Group("/accounts")
	accounts.Get("/", middleware.AuthRole(cfg, "show_employee"), employeeHandler.Index)
	accounts.Get("/:id", middleware.AuthRole(cfg, "show_employee"), employeeHandler.Show)
	accounts.Patch("/:id", middleware.AuthRole(cfg, "update_employee"), employeeHandler.Update)
	accounts.Delete("/:id", middleware.AuthRole(cfg, "delete_employee"), employeeHandler.Delete)

	distributor := api.Group("/distributor")
	distributor.Post("/", distributorHandler.Create)
	distributor.Get("/", distributorHandler.Index)
	distributor.Get("/:id", middleware.AuthRole(cfg, "get_distributor"), distributorHandler.Show)
	distributor.Patch("/:id", middleware.AuthRole(cfg, "update_distributor"), distributorHandler.Update)
	distributor.Delete("/:id", middleware.AuthRole(cfg, "delete_distributor"), distributorHandler.Delete)
}
