package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/models"
	"github.com/example/distributor-server/internal/utils"
)

// DistributorHandler manages distributor resources.
type DistributorHandler struct {
	db *gorm.DB
}

// NewDistributorHandler constructs a DistributorHandler.
func NewDistributorHandler(db *gorm.DB) *DistributorHandler {
	return &DistributorHandler{db: db}
}

type distributorCreateRequest struct {
	Name      string `json:"name" validate:"required"`
	TinNumber string `json:"tin_number" validate:"required"`
	Location  string `json:"location"`
}

// Create persists a new distributor, rejecting duplicate names.
func (h *DistributorHandler) Create(c *fiber.Ctx) error {
	var req distributorCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		return apperrors.Validation(errs)
	}

	var existing models.Distributor
	err := h.db.Where("name = ?", req.Name).First(&existing).Error
	if err == nil {
		return apperrors.ResourceExists(fmt.Sprintf("Distributor with name %s exists", req.Name))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(err, "failed to check distributor name")
	}

	distributor := models.Distributor{
		Name:      req.Name,
		TinNumber: req.TinNumber,
		Location:  req.Location,
	}
	if err := h.db.Create(&distributor).Error; err != nil {
		return apperrors.Wrap(err, "failed to create distributor")
	}

	return c.Status(fiber.StatusCreated).JSON(distributor)
}

// Index returns all distributors.
func (h *DistributorHandler) Index(c *fiber.Ctx) error {
	var distributors []models.Distributor
	if err := h.db.Order("created_at desc").Find(&distributors).Error; err != nil {
		return apperrors.Wrap(err, "failed to list distributors")
	}
	return c.JSON(distributors)
}

// Show returns a single distributor with its employees.
func (h *DistributorHandler) Show(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	var distributor models.Distributor
	if err := h.db.Preload("Employees").First(&distributor, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("distributor not found")
		}
		return apperrors.Wrap(err, "failed to load distributor")
	}

	return c.JSON(distributor)
}

type distributorUpdateRequest struct {
	Name      *string `json:"name"`
	TinNumber *string `json:"tin_number"`
	Location  *string `json:"location"`
}

// Update applies a partial update to a distributor.
func (h *DistributorHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	var req distributorUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	var distributor models.Distributor
	if err := h.db.First(&distributor, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("distributor not found")
		}
		return apperrors.Wrap(err, "failed to load distributor")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.TinNumber != nil {
		updates["tin_number"] = *req.TinNumber
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}

	if len(updates) > 0 {
		if err := h.db.Model(&distributor).Updates(updates).Error; err != nil {
			return apperrors.Wrap(err, "failed to update distributor")
		}
	}

	return c.JSON(distributor)
}

// Delete removes a distributor. Deletion is refused while employees still
// reference it.
func (h *DistributorHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.BadRequest("invalid id")
	}

	var employees int64
	if err := h.db.Model(&models.Employee{}).
		Where("distributor_id = ?", id).Count(&employees).Error; err != nil {
		return apperrors.Wrap(err, "failed to count employees")
	}
	if employees > 0 {
		return apperrors.BadRequest("distributor has employees assigned")
	}

	if err := h.db.Delete(&models.Distributor{}, "id = ?", id).Error; err != nil {
		return apperrors.Wrap(err, "failed to delete distributor")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
