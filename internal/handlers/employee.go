package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/config"
	"github.com/example/distributor-server/internal/middleware"
	"github.com/example/distributor-server/internal/models"
	"github.com/example/distributor-server/internal/services"
	"github.com/example/distributor-server/internal/utils"
)

// AuthService is the identity-provider contract the employee flows depend
// on. KeycloakService is the concrete adapter; tests supply doubles.
type AuthService interface {
	AdminAccessToken() (string, error)
	GetToken(username, password string) (*services.TokenPair, error)
	RefreshToken(refreshToken string) (*services.TokenPair, error)
	CreateUser(input services.CreateUserInput) (*services.CreateUserResult, error)
	ResetPassword(userID, newPassword string) error
}

// EmployeeHandler orchestrates employee account flows across local
// persistence, the identity provider, reset tokens and SMS notifications.
type EmployeeHandler struct {
	db       *gorm.DB
	cfg      *config.Config
	auth     AuthService
	tokens   *services.TokenService
	notifier services.Notifier
	log      *zap.Logger
}

// NewEmployeeHandler constructs an EmployeeHandler.
func NewEmployeeHandler(db *gorm.DB, cfg *config.Config, auth AuthService,
	tokens *services.TokenService, notifier services.Notifier, log *zap.Logger) *EmployeeHandler {
	return &EmployeeHandler{db: db, cfg: cfg, auth: auth, tokens: tokens, notifier: notifier, log: log}
}

type employeeCreateRequest struct {
	FirstName           string `json:"first_name" validate:"required,min=2,max=24"`
	LastName            string `json:"last_name" validate:"required,min=2,max=24"`
	EmailAddress        string `json:"email_address" validate:"omitempty,email"`
	PhoneNumber         string `json:"phone_number" validate:"required,phone"`
	Password            string `json:"password" validate:"required,min=5"`
	CreateSecondaryUser bool   `json:"create_secondary_user"`
	CreateRetailer      bool   `json:"create_retailer"`
	DistributorID       string `json:"distributor_id" validate:"required,uuid"`
}

// Create provisions a Keycloak identity for a new employee and persists the
// local account. The local record never holds the password.
func (h *EmployeeHandler) Create(c *fiber.Ctx) error {
	var req employeeCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	if err := h.ensureUnique("phone_number", req.PhoneNumber,
		fmt.Sprintf("Employee with phone number %s exists", req.PhoneNumber)); err != nil {
		return err
	}
	if err := h.ensureUnique("email_address", req.EmailAddress,
		fmt.Sprintf("Employee with email %s exists", req.EmailAddress)); err != nil {
		return err
	}

	// Confirm the identity provider is reachable before touching anything.
	if _, err := h.auth.AdminAccessToken(); err != nil {
		return err
	}

	var permissions []string
	if req.CreateRetailer {
		permissions = append(permissions, h.cfg.ServiceName+"_create_retailer")
	}
	if req.CreateSecondaryUser {
		permissions = append(permissions, h.cfg.ServiceName+"_create_employee")
	}

	distributorID, err := uuid.Parse(req.DistributorID)
	if err != nil {
		return apperrors.BadRequest("invalid distributor_id")
	}

	// The local account id doubles as the Keycloak username.
	employeeID := uuid.New()
	result, err := h.auth.CreateUser(services.CreateUserInput{
		Username:    employeeID.String(),
		Email:       req.EmailAddress,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Password:    req.Password,
		Permissions: permissions,
	})
	if err != nil {
		return err
	}

	authServiceID, err := uuid.Parse(result.UserID)
	if err != nil {
		return apperrors.Wrap(err, "unexpected identity provider user id")
	}

	// Absent emails persist as NULL so the unique index never collides on
	// the empty string.
	var email *string
	if req.EmailAddress != "" {
		email = &req.EmailAddress
	}

	employee := models.Employee{
		BaseModel:           models.BaseModel{ID: employeeID},
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		PhoneNumber:         req.PhoneNumber,
		EmailAddress:        email,
		DistributorID:       distributorID,
		CreateSecondaryUser: req.CreateSecondaryUser,
		CreateRetailer:      req.CreateRetailer,
		AuthServiceID:       authServiceID,
	}
	if err := h.db.Create(&employee).Error; err != nil {
		return apperrors.Wrap(err, "failed to create employee")
	}

	h.log.Info("employee created",
		zap.String("employee_id", employeeID.String()),
		zap.String("auth_service_id", result.UserID))

	return c.Status(fiber.StatusCreated).JSON(result.TokenPair)
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
	Password    string `json:"password" validate:"required,min=4"`
}

// Login exchanges a phone number and password for a token pair. The local
// account id is the Keycloak username.
func (h *EmployeeHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	employee, err := h.findByPhone(req.PhoneNumber, "user does not exist")
	if err != nil {
		return err
	}

	tokens, err := h.auth.GetToken(employee.ID.String(), req.Password)
	if err != nil {
		return err
	}

	return c.JSON(tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (h *EmployeeHandler) RefreshToken(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	tokens, err := h.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(tokens)
}

type resetRequestRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

// RequestPasswordReset issues a reset token and texts the code to the
// account's phone. Only the token id is returned, never the code.
func (h *EmployeeHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	employee, err := h.findByPhone(req.PhoneNumber, "User not found")
	if err != nil {
		return err
	}

	token, err := h.tokens.Issue(employee.ID)
	if err != nil {
		return err
	}

	h.sendOTP(c.UserContext(), employee.PhoneNumber, token.Token)

	return c.JSON(fiber.Map{"id": token.ID})
}

type resendTokenRequest struct {
	TokenID string `json:"token_id" validate:"required,uuid"`
}

// ResendToken mints a brand-new token for the account behind an existing
// token id and texts the new code.
func (h *EmployeeHandler) ResendToken(c *fiber.Ctx) error {
	var req resendTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	tokenID, _ := uuid.Parse(req.TokenID)
	token, employee, err := h.tokens.Resend(tokenID)
	if err != nil {
		return err
	}

	h.sendOTP(c.UserContext(), employee.PhoneNumber, token.Token)

	return c.JSON(fiber.Map{"id": token.ID})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ChangePassword re-authenticates the caller with the old password before
// resetting the provider credential. The caller's identity comes from the
// verified token, not the request body.
func (h *EmployeeHandler) ChangePassword(c *fiber.Ctx) error {
	username, ok := middleware.PreferredUsername(c)
	if !ok {
		return apperrors.Unauthorized("Missing authentication token")
	}
	employeeID, err := uuid.Parse(username)
	if err != nil {
		return apperrors.Unauthorized("Invalid Token")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	var employee models.Employee
	if err := h.db.First(&employee, "id = ?", employeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("user does not exist")
		}
		return apperrors.Wrap(err, "failed to load employee")
	}

	if _, err := h.auth.GetToken(employee.ID.String(), req.OldPassword); err != nil {
		return err
	}

	if err := h.auth.ResetPassword(employee.AuthServiceID.String(), req.NewPassword); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type resetPasswordRequest struct {
	TokenID     string `json:"token_id" validate:"required,uuid"`
	Token       string `json:"token" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ResetPassword confirms a reset code, resets the provider credential and
// sends a confirmation SMS.
func (h *EmployeeHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	tokenID, _ := uuid.Parse(req.TokenID)
	employee, err := h.tokens.Confirm(tokenID, req.Token)
	if err != nil {
		return err
	}

	if err := h.auth.ResetPassword(employee.AuthServiceID.String(), req.NewPassword); err != nil {
		return err
	}

	if !h.notifier.Send(c.UserContext(), services.Notification{
		Meta:      services.NotificationMeta{Type: "sms_notification", Subtype: "successful_pin_change"},
		Details:   map[string]interface{}{"name": employee.FirstName},
		Recipient: employee.PhoneNumber,
	}) {
		h.log.Warn("pin change notification not delivered",
			zap.String("employee_id", employee.ID.String()))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type employeeUpdateRequest struct {
	FirstName           *string `json:"first_name" validate:"omitempty,min=2,max=24"`
	LastName            *string `json:"last_name" validate:"omitempty,min=2,max=24"`
	EmailAddress        *string `json:"email_address" validate:"omitempty,email"`
	PhoneNumber         *string `json:"phone_number" validate:"omitempty,phone"`
	CreateSecondaryUser *bool   `json:"create_secondary_user"`
	CreateRetailer      *bool   `json:"create_retailer"`
}

// Update applies a partial update to an employee.
func (h *EmployeeHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	var req employeeUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	var employee models.Employee
	if err := h.db.First(&employee, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("employee not found")
		}
		return apperrors.Wrap(err, "failed to load employee")
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.EmailAddress != nil {
		if *req.EmailAddress == "" {
			updates["email_address"] = nil
		} else {
			updates["email_address"] = *req.EmailAddress
		}
	}
	if req.PhoneNumber != nil {
		updates["phone_number"] = *req.PhoneNumber
	}
	if req.CreateSecondaryUser != nil {
		updates["create_secondary_user"] = *req.CreateSecondaryUser
	}
	if req.CreateRetailer != nil {
		updates["create_retailer"] = *req.CreateRetailer
	}

	if len(updates) > 0 {
		if err := h.db.Model(&employee).Updates(updates).Error; err != nil {
			return apperrors.Wrap(err, "failed to update employee")
		}
	}

	return c.JSON(employee)
}

// Show returns a single employee by ID.
func (h *EmployeeHandler) Show(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	var employee models.Employee
	if err := h.db.First(&employee, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("employee not found")
		}
		return apperrors.Wrap(err, "failed to load employee")
	}

	return c.JSON(employee)
}

// Index returns paginated employees.
func (h *EmployeeHandler) Index(c *fiber.Ctx) error {
	pg := utils.ParsePageParams(c)
	var employees []models.Employee
	var total int64

	if err := h.db.Model(&models.Employee{}).Count(&total).Error; err != nil {
		return apperrors.Wrap(err, "failed to count employees")
	}

	if err := h.db.Limit(pg.PerPage).Offset(pg.Offset).Order("created_at desc").
		Find(&employees).Error; err != nil {
		return apperrors.Wrap(err, "failed to list employees")
	}

	return c.JSON(fiber.Map{
		"data": employees,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.PerPage,
			"total_items":    total,
		},
	})
}

// Delete removes an employee by ID.
func (h *EmployeeHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	if err := h.db.Delete(&models.ResetToken{}, "employee_id = ?", id).Error; err != nil {
		return apperrors.Wrap(err, "failed to delete reset tokens")
	}
	if err := h.db.Delete(&models.Employee{}, "id = ?", id).Error; err != nil {
		return apperrors.Wrap(err, "failed to delete employee")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EmployeeHandler) ensureUnique(column, value, message string) error {
	if value == "" {
		return nil
	}
	var existing models.Employee
	err := h.db.Where(column+" = ?", value).First(&existing).Error
	if err == nil {
		return apperrors.ResourceExists(message)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(err, "failed to check "+column)
	}
	return nil
}

func (h *EmployeeHandler) findByPhone(phone, missing string) (*models.Employee, error) {
	var employee models.Employee
	if err := h.db.First(&employee, "phone_number = ?", phone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(missing)
		}
		return nil, apperrors.Wrap(err, "failed to load employee")
	}
	return &employee, nil
}

func (h *EmployeeHandler) sendOTP(ctx context.Context, phone, code string) {
	if !h.notifier.Send(ctx, services.Notification{
		Meta:      services.NotificationMeta{Type: "sms_notification", Subtype: "otp"},
		Details:   map[string]interface{}{"verification_code": code},
		Recipient: phone,
	}) {
		h.log.Warn("otp notification not delivered", zap.String("recipient", phone))
	}
}
