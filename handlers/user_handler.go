package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"crm-backend/models"
	"crm-backend/services"
)

// CreateUser handles the creation of a new user
func CreateUser(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Company ID not found in session",
		})
	}

	var req struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		FullName string `json:"full_name" validate:"required"`
		Phone    string `json:"phone"`
		Role     string `json:"role" validate:"required"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if !models.IsValidRole(req.Role) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role",
			"builtin_roles": []string{
				string(models.RoleAdmin),
				string(models.RoleManager),
				string(models.RoleSales),
				string(models.RoleViewer),
			},
		})
	}

	actorID, _ := c.Locals("user_id").(string)
	user := &models.User{
		Username:  req.Username,
		Email:     req.Email,
		FullName:  req.FullName,
		Phone:     req.Phone,
		CompanyID: companyID,
		Role:      models.UserRole(req.Role),
		CreatedBy: actorID,
	}

	if err := services.CreateUser(c.Context(), user, req.Password); err != nil {
		slog.Error("Failed to create user", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to create user",
			"details": err.Error(),
		})
	}

	actorEmail, _ := c.Locals("email").(string)
	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  companyID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     models.AuditCreate,
		Entity:     "user",
		EntityID:   user.ID.Hex(),
		Detail:     user.Email,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// GetUser retrieves a user by ID
func GetUser(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	user, err := services.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	if user.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied to this user",
		})
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

// GetCompanyUsers lists the users of the caller's company, annotated with a
// presence flag for the online indicator.
func GetCompanyUsers(c *fiber.Ctx) error {
	companyID, _ := c.Locals("company_id").(string)

	users, err := services.GetCompanyUsers(c.Context(), companyID)
	if err != nil {
		slog.Error("Failed to get company users", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get users",
		})
	}

	type userWithPresence struct {
		*models.User
		Online bool `json:"online"`
	}

	result := make([]userWithPresence, 0, len(users))
	for _, u := range users {
		result = append(result, userWithPresence{
			User:   u,
			Online: services.IsUserOnline(u, presenceWindow),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"users": result,
		"count": len(result),
	})
}

// UpdateUserRole changes a user's role
func UpdateUserRole(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req struct {
		Role string `json:"role" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !models.IsValidRole(req.Role) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role",
		})
	}

	target, err := services.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	if target.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied to this user",
		})
	}

	if err := services.UpdateUserRole(c.Context(), userID, models.UserRole(req.Role)); err != nil {
		slog.Error("Failed to update user role", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update role",
		})
	}

	actorID, _ := c.Locals("user_id").(string)
	actorEmail, _ := c.Locals("email").(string)
	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  companyID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     models.AuditUpdate,
		Entity:     "user",
		EntityID:   userID,
		Detail:     "role=" + req.Role,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Role updated",
	})
}

// DeactivateUser archives a user account and terminates its session. The
// email is rewritten to the archived sentinel so it can be reused; the row
// stays behind for referential integrity with quotes and projects.
func DeactivateUser(c *fiber.Ctx) error {
	userID := c.Params("userID")

	actorID, _ := c.Locals("user_id").(string)
	if userID == actorID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot deactivate your own account",
		})
	}

	target, err := services.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	companyID, _ := c.Locals("company_id").(string)
	if target.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied to this user",
		})
	}

	user, err := services.DeactivateUser(c.Context(), userID)
	if err != nil {
		slog.Error("Failed to deactivate user", "error", err, "user_id", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to deactivate user",
		})
	}

	// Kill the live session and tell any open tab about it.
	if err := services.Issuer.ForceLogout(c.Context(), userID); err != nil {
		slog.Error("Failed to force logout deactivated user", "error", err, "user_id", userID)
	}
	if fresh, err := services.Identities.GetByID(c.Context(), userID); err == nil && fresh != nil {
		services.GetWebSocketManager().BroadcastIdentityUpdate(fresh)
	}

	actorEmail, _ := c.Locals("email").(string)
	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  companyID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     models.AuditDeactivate,
		Entity:     "user",
		EntityID:   userID,
		Detail:     user.Email,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User deactivated",
		"user":    user,
	})
}
