package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"crm-backend/models"
	"crm-backend/services"
)

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	CompanyID  string `json:"company_id" validate:"required"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type LoginResponse struct {
	Message          string       `json:"message"`
	User             *models.User `json:"user"`
	SessionStartedAt time.Time    `json:"session_started_at"`
}

func setSessionCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   secureCookies,
		SameSite: "Lax",
		Path:     "/",
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     services.SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
		Secure:   secureCookies,
		SameSite: "Lax",
		Path:     "/",
	})
}

func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" || req.CompanyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email, password, and company_id are required",
		})
	}

	user, err := services.Identities.GetByEmailAndCompany(c.Context(), req.Email, req.CompanyID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "email", req.Email)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed, please try again",
		})
	}
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Info("Invalid password attempt", "email", req.Email)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	session, reclaimed, err := services.Issuer.Issue(c.Context(), user, req.DeviceInfo)
	if err != nil {
		var conflict *services.SessionExistsError
		switch {
		case errors.Is(err, services.ErrAccountDisabled):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Account is deactivated",
			})
		case errors.As(err, &conflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "This account is already signed in on another device",
				"code":  "SESSION_EXISTS",
				"details": fiber.Map{
					"last_login_at": conflict.LastLoginAt.Format(time.RFC3339),
					"device_info":   conflict.DeviceInfo,
				},
			})
		default:
			slog.Error("Failed to issue session", "error", err, "userID", user.ID.Hex())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Login failed, please try again",
			})
		}
	}

	if reclaimed {
		// A lingering tab from the evicted session self-terminates once it
		// sees the fresh forced-logout marker.
		if fresh, err := services.Identities.GetByID(c.Context(), user.ID.Hex()); err == nil && fresh != nil {
			services.GetWebSocketManager().BroadcastIdentityUpdate(fresh)
		}
	}

	setSessionCookie(c, session.Token, session.LoginAt.Add(sessionTTL))

	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  user.CompanyID,
		ActorID:    user.ID.Hex(),
		ActorEmail: user.Email,
		Action:     models.AuditLogin,
		Entity:     "session",
		EntityID:   session.ID.Hex(),
		Detail:     session.DeviceInfo,
	})

	slog.Info("User logged in",
		"user_id", user.ID.Hex(),
		"email", user.Email,
		"reclaimed", reclaimed)

	return c.Status(fiber.StatusOK).JSON(LoginResponse{
		Message:          "Login successful",
		User:             user,
		SessionStartedAt: session.LoginAt,
	})
}

func Logout(c *fiber.Ctx) error {
	token := c.Cookies(services.SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}

	// Resolve the session first so the audit entry can name the user.
	session, _ := services.Sessions.GetByToken(c.Context(), token)

	if err := services.Issuer.Revoke(c.Context(), token); err != nil {
		slog.Error("Failed to revoke session", "error", err)
	}

	clearSessionCookie(c)

	if session != nil {
		services.RecordAudit(c.Context(), &models.AuditEntry{
			CompanyID: session.CompanyID,
			ActorID:   session.UserID,
			Action:    models.AuditLogout,
			Entity:    "session",
			EntityID:  session.ID.Hex(),
		})
		slog.Info("User logged out", "user_id", session.UserID)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

func GetCurrentUser(c *fiber.Ctx) error {
	token := c.Cookies(services.SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	session, err := services.Sessions.GetByToken(c.Context(), token)
	if err != nil || session == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}

	user, err := services.GetUserByID(c.Context(), session.UserID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "user_id", session.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get user information",
		})
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

func CheckSession(c *fiber.Ctx) error {
	token := c.Cookies(services.SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"authenticated": false,
		})
	}

	session, err := services.Sessions.GetByToken(c.Context(), token)
	if err != nil || session == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"authenticated": false,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"authenticated":      true,
		"user_id":            session.UserID,
		"company_id":         session.CompanyID,
		"device_info":        session.DeviceInfo,
		"session_started_at": session.LoginAt,
	})
}

type HeartbeatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// Heartbeat is the monitor's liveness ping. It answers with the account
// status rather than an error so the client can distinguish "you are gone"
// from a transient network failure. A dead or mismatched session also reads
// as inactive: that is what lets a zombie tab notice a reclaim within one
// heartbeat interval even when the push channel is down.
func Heartbeat(c *fiber.Ctx) error {
	var req HeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	token := c.Cookies(services.SessionCookieName)
	if token == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "inactive"})
	}

	session, err := services.Sessions.GetByToken(c.Context(), token)
	if err != nil {
		slog.Error("Heartbeat session lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Heartbeat failed",
		})
	}
	if session == nil || (req.UserID != "" && session.UserID != req.UserID) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "inactive"})
	}

	user, err := services.Identities.GetByID(c.Context(), session.UserID)
	if err != nil {
		slog.Error("Heartbeat identity lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Heartbeat failed",
		})
	}
	if user == nil || !user.IsActive {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "inactive"})
	}

	if err := services.Identities.UpdateLastSeen(c.Context(), session.UserID, time.Now()); err != nil {
		slog.Error("Failed to update last seen", "error", err, "user_id", session.UserID)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "active"})
}

// ForceLogoutUser terminates another user's session (admin action). The
// session row disappears immediately; the open tab learns about it through
// the identity_update push or, failing that, its next heartbeat.
func ForceLogoutUser(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
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

	if err := services.Issuer.ForceLogout(c.Context(), userID); err != nil {
		slog.Error("Failed to force logout", "error", err, "user_id", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to force logout",
		})
	}

	if fresh, err := services.Identities.GetByID(c.Context(), userID); err == nil && fresh != nil {
		services.GetWebSocketManager().BroadcastIdentityUpdate(fresh)
	}

	actorID, _ := c.Locals("user_id").(string)
	actorEmail, _ := c.Locals("email").(string)
	services.RecordAudit(c.Context(), &models.AuditEntry{
		CompanyID:  companyID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     models.AuditForceLogout,
		Entity:     "user",
		EntityID:   userID,
	})

	slog.Info("User force logged out", "user_id", userID, "by", actorID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User logged out",
	})
}
