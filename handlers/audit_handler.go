package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"crm-backend/services"
)

// GetAuditLog lists audit entries for the caller's company, newest first
func GetAuditLog(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	limit, _ := strconv.ParseInt(c.Query("limit", "50"), 10, 64)
	offset, _ := strconv.ParseInt(c.Query("offset", "0"), 10, 64)

	entries, err := services.ListAuditEntries(c.Context(), companyID, services.AuditFilter{
		Entity:  c.Query("entity"),
		ActorID: c.Query("actor_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		slog.Error("Failed to list audit entries", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get audit log",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}
