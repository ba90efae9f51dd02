package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"crm-backend/models"
	"crm-backend/services"
)

type QuoteRequest struct {
	ClientID  string             `json:"client_id" validate:"required"`
	ProjectID string             `json:"project_id"`
	Title     string             `json:"title" validate:"required"`
	Status    string             `json:"status"`
	Currency  string             `json:"currency"`
	Lines     []models.QuoteLine `json:"lines"`
}

// CreateQuote creates a new quote for the caller's company
func CreateQuote(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Title == "" || req.ClientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and client_id are required",
		})
	}
	if req.Status != "" && !models.IsValidQuoteStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid quote status",
		})
	}

	companyID, _ := c.Locals("company_id").(string)

	client, err := services.GetClient(c.Context(), companyID, req.ClientID)
	if err != nil || client == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Client not found",
		})
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	actorID, _ := c.Locals("user_id").(string)
	quote := &models.Quote{
		CompanyID: companyID,
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Status:    models.QuoteStatus(req.Status),
		Currency:  currency,
		Lines:     req.Lines,
		CreatedBy: actorID,
	}

	if err := services.CreateQuote(c.Context(), quote); err != nil {
		slog.Error("Failed to create quote", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to create quote",
			"details": err.Error(),
		})
	}

	recordCRUDAudit(c, models.AuditCreate, "quote", quote.ID.Hex(), quote.Number)
	broadcastChange(companyID, "quote_created", quote)

	return c.Status(fiber.StatusCreated).JSON(quote)
}

// GetQuote retrieves one quote
func GetQuote(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	quote, err := services.GetQuote(c.Context(), companyID, c.Params("quoteID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid quote ID",
		})
	}
	if quote == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Quote not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(quote)
}

// GetQuotes lists the company's quotes with optional filters
func GetQuotes(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	quotes, err := services.ListQuotes(c.Context(), companyID, c.Query("client_id"), c.Query("status"))
	if err != nil {
		slog.Error("Failed to list quotes", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get quotes",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"quotes": quotes,
		"count":  len(quotes),
	})
}

// UpdateQuote replaces a quote's mutable fields
func UpdateQuote(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Status != "" && !models.IsValidQuoteStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid quote status",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	quoteID := c.Params("quoteID")

	existing, err := services.GetQuote(c.Context(), companyID, quoteID)
	if err != nil || existing == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Quote not found",
		})
	}

	quote := &models.Quote{
		Title:     req.Title,
		Status:    models.QuoteStatus(req.Status),
		Currency:  req.Currency,
		Lines:     req.Lines,
		ProjectID: req.ProjectID,
	}
	if quote.Title == "" {
		quote.Title = existing.Title
	}
	if quote.Status == "" {
		quote.Status = existing.Status
	}
	if quote.Currency == "" {
		quote.Currency = existing.Currency
	}

	if err := services.UpdateQuote(c.Context(), companyID, quoteID, quote); err != nil {
		slog.Error("Failed to update quote", "error", err, "quote_id", quoteID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update quote",
		})
	}

	recordCRUDAudit(c, models.AuditUpdate, "quote", quoteID, existing.Number)
	broadcastChange(companyID, "quote_updated", fiber.Map{"id": quoteID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Quote updated",
	})
}

// DeleteQuote removes a quote
func DeleteQuote(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)
	quoteID := c.Params("quoteID")

	if err := services.DeleteQuote(c.Context(), companyID, quoteID); err != nil {
		slog.Error("Failed to delete quote", "error", err, "quote_id", quoteID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete quote",
		})
	}

	recordCRUDAudit(c, models.AuditDelete, "quote", quoteID, "")
	broadcastChange(companyID, "quote_deleted", fiber.Map{"id": quoteID})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Quote deleted",
	})
}
