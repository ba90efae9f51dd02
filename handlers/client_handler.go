package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"crm-backend/models"
	"crm-backend/services"
)

type ClientRequest struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
}

// CreateClient creates a new client for the caller's company
func CreateClient(c *fiber.Ctx) error {
	var req ClientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name is required",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	actorID, _ := c.Locals("user_id").(string)

	client := &models.Client{
		CompanyID:     companyID,
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		Notes:         req.Notes,
		CreatedBy:     actorID,
	}

	if err := services.CreateClient(c.Context(), client); err != nil {
		slog.Error("Failed to create client", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create client",
		})
	}

	recordCRUDAudit(c, models.AuditCreate, "client", client.ID.Hex(), client.Name)
	broadcastChange(companyID, "client_created", client)

	return c.Status(fiber.StatusCreated).JSON(client)
}

// GetClient retrieves one client
func GetClient(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	client, err := services.GetClient(c.Context(), companyID, c.Params("clientID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid client ID",
		})
	}
	if client == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Client not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(client)
}

// GetClients lists the company's clients
func GetClients(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	clients, err := services.ListClients(c.Context(), companyID)
	if err != nil {
		slog.Error("Failed to list clients", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get clients",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"clients": clients,
		"count":   len(clients),
	})
}

// UpdateClient updates a client's fields
func UpdateClient(c *fiber.Ctx) error {
	var req ClientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	clientID := c.Params("clientID")

	update := bson.M{}
	if req.Name != "" {
		update["name"] = req.Name
	}
	if req.ContactPerson != "" {
		update["contact_person"] = req.ContactPerson
	}
	if req.Email != "" {
		update["email"] = req.Email
	}
	if req.Phone != "" {
		update["phone"] = req.Phone
	}
	if req.Address != "" {
		update["address"] = req.Address
	}
	if req.Notes != "" {
		update["notes"] = req.Notes
	}

	if err := services.UpdateClient(c.Context(), companyID, clientID, update); err != nil {
		slog.Error("Failed to update client", "error", err, "client_id", clientID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update client",
		})
	}

	recordCRUDAudit(c, models.AuditUpdate, "client", clientID, req.Name)
	broadcastChange(companyID, "client_updated", fiber.Map{"id": clientID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Client updated",
	})
}

// DeleteClient removes a client
func DeleteClient(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)
	clientID := c.Params("clientID")

	if err := services.DeleteClient(c.Context(), companyID, clientID); err != nil {
		slog.Error("Failed to delete client", "error", err, "client_id", clientID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete client",
		})
	}

	recordCRUDAudit(c, models.AuditDelete, "client", clientID, "")
	broadcastChange(companyID, "client_deleted", fiber.Map{"id": clientID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Client deleted",
	})
}

// recordCRUDAudit appends an audit entry for a CRUD mutation using the
// actor's session locals.
func recordCRUDAudit(c *fiber.Ctx, action models.AuditAction, entity, entityID, detail string) {
	companyID, _ := c.Locals("company_id").(string)
	actorID, _ := c.Locals("user_id").(string)
	actorEmail, _ := c.Locals("email").(string)

	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  companyID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Detail:     detail,
	})
}

// broadcastChange pushes a CRM change notification to the company's
// dashboard connections.
func broadcastChange(companyID, eventType string, data interface{}) {
	services.GetWebSocketManager().BroadcastToCompany(companyID, services.BroadcastMessage{
		CompanyID: companyID,
		Type:      eventType,
		Data:      data,
	})
}
