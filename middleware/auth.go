package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"crm-backend/models"
	"crm-backend/services"
)

// expireSessionCookie deletes the session cookie. The route guard never
// leaves a cookie pointing at a session row that does not exist.
func expireSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})
}

// RequireAuth validates the session cookie against the session store on every
// request. No caching: revocation is visible on the next navigation.
func RequireAuth(c *fiber.Ctx) error {
	token := c.Cookies(services.SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
			"code":  "AUTH_REQUIRED",
		})
	}

	session, err := services.Sessions.GetByToken(c.Context(), token)
	if err != nil {
		slog.Error("Failed to get session", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
			"code":  "AUTH_REQUIRED",
		})
	}

	if session == nil {
		// Expired or reclaimed elsewhere. Drop the stale cookie so the
		// client lands on the login screen with an explanation.
		expireSessionCookie(c)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Session is no longer valid",
			"code":  "SESSION_INVALID",
		})
	}

	user, err := services.Identities.GetByID(c.Context(), session.UserID)
	if err != nil || user == nil {
		slog.Error("Failed to resolve session identity", "error", err, "userID", session.UserID)
		expireSessionCookie(c)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Session is no longer valid",
			"code":  "SESSION_INVALID",
		})
	}

	if !user.IsActive {
		expireSessionCookie(c)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Account is deactivated",
			"code":  "ACCOUNT_DISABLED",
		})
	}

	// Set user information in locals for downstream handlers
	c.Locals("user_id", session.UserID)
	c.Locals("email", user.Email)
	c.Locals("username", user.Username)
	c.Locals("company_id", user.CompanyID)
	c.Locals("role", string(user.Role))
	c.Locals("session_token", token)
	c.Locals("session_login_at", session.LoginAt)

	return c.Next()
}

// RequireRole gates a route to the listed roles
func RequireRole(roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userRole, ok := c.Locals("role").(string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		currentRole := models.UserRole(userRole)
		for _, allowedRole := range roles {
			if currentRole == allowedRole {
				return c.Next()
			}
		}

		slog.Info("Access denied", "user_role", currentRole, "required_roles", roles)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// RequireAdmin gates a route to admins only
func RequireAdmin(c *fiber.Ctx) error {
	userRole, _ := c.Locals("role").(string)
	if models.UserRole(userRole) != models.RoleAdmin {
		slog.Info("Access denied - admin required", "user_role", userRole)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only admins can perform this action",
		})
	}
	return c.Next()
}

func requireCapability(module models.Module, check func(models.Capability) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userRole, ok := c.Locals("role").(string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		cap := models.RoleCapability(models.UserRole(userRole), module)
		if !check(cap) {
			slog.Info("Capability denied", "user_role", userRole, "module", module)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}

// RequireRead gates a route on read capability for a module
func RequireRead(module models.Module) fiber.Handler {
	return requireCapability(module, func(c models.Capability) bool { return c.Read })
}

// RequireWrite gates a route on write capability for a module
func RequireWrite(module models.Module) fiber.Handler {
	return requireCapability(module, func(c models.Capability) bool { return c.Write })
}

// RequireDelete gates a route on delete capability for a module
func RequireDelete(module models.Module) fiber.Handler {
	return requireCapability(module, func(c models.Capability) bool { return c.Delete })
}
