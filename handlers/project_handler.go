package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"crm-backend/models"
	"crm-backend/services"
)

type ProjectRequest struct {
	ClientID    string     `json:"client_id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// CreateProject creates a new project for the caller's company
func CreateProject(c *fiber.Ctx) error {
	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.ClientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and client_id are required",
		})
	}
	if req.Status != "" && !models.IsValidProjectStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project status",
		})
	}

	companyID, _ := c.Locals("company_id").(string)

	// The referenced client must belong to the same company.
	client, err := services.GetClient(c.Context(), companyID, req.ClientID)
	if err != nil || client == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Client not found",
		})
	}

	actorID, _ := c.Locals("user_id").(string)
	project := &models.Project{
		CompanyID:   companyID,
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.ProjectStatus(req.Status),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedBy:   actorID,
	}

	if err := services.CreateProject(c.Context(), project); err != nil {
		slog.Error("Failed to create project", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	recordCRUDAudit(c, models.AuditCreate, "project", project.ID.Hex(), project.Name)
	broadcastChange(companyID, "project_created", project)

	return c.Status(fiber.StatusCreated).JSON(project)
}

// GetProject retrieves one project
func GetProject(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	project, err := services.GetProject(c.Context(), companyID, c.Params("projectID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	if project == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(project)
}

// GetProjects lists the company's projects, optionally filtered by client
func GetProjects(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	projects, err := services.ListProjects(c.Context(), companyID, c.Query("client_id"))
	if err != nil {
		slog.Error("Failed to list projects", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get projects",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"projects": projects,
		"count":    len(projects),
	})
}

// UpdateProject updates a project's fields
func UpdateProject(c *fiber.Ctx) error {
	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Status != "" && !models.IsValidProjectStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project status",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	projectID := c.Params("projectID")

	update := bson.M{}
	if req.Name != "" {
		update["name"] = req.Name
	}
	if req.Description != "" {
		update["description"] = req.Description
	}
	if req.Status != "" {
		update["status"] = req.Status
	}
	if req.StartDate != nil {
		update["start_date"] = req.StartDate
	}
	if req.EndDate != nil {
		update["end_date"] = req.EndDate
	}

	if err := services.UpdateProject(c.Context(), companyID, projectID, update); err != nil {
		slog.Error("Failed to update project", "error", err, "project_id", projectID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update project",
		})
	}

	recordCRUDAudit(c, models.AuditUpdate, "project", projectID, req.Name)
	broadcastChange(companyID, "project_updated", fiber.Map{"id": projectID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Project updated",
	})
}

// DeleteProject removes a project
func DeleteProject(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)
	projectID := c.Params("projectID")

	if err := services.DeleteProject(c.Context(), companyID, projectID); err != nil {
		slog.Error("Failed to delete project", "error", err, "project_id", projectID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}

	recordCRUDAudit(c, models.AuditDelete, "project", projectID, "")
	broadcastChange(companyID, "project_deleted", fiber.Map{"id": projectID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Project deleted",
	})
}
