package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"crm-backend/services"
)

// EmbedClaims are the claims carried by a quote builder embed token
type EmbedClaims struct {
	UserID    string `json:"uid"`
	CompanyID string `json:"cid"`
	QuoteID   string `json:"qid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// CreateEmbedToken issues a short-lived signed token for the quote builder
// iframe. The micro-frontend presents it on its callback requests instead of
// the session cookie, which never crosses the iframe boundary.
func CreateEmbedToken(c *fiber.Ctx) error {
	if embedTokenSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Quote builder embedding is not configured",
		})
	}

	quoteID := c.Params("quoteID")
	companyID, _ := c.Locals("company_id").(string)

	quote, err := services.GetQuote(c.Context(), companyID, quoteID)
	if err != nil || quote == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Quote not found",
		})
	}

	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	now := time.Now()

	claims := EmbedClaims{
		UserID:    userID,
		CompanyID: companyID,
		QuoteID:   quoteID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "crm-backend",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(embedTokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(embedTokenSecret))
	if err != nil {
		slog.Error("Failed to sign embed token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create embed token",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"token":      token,
		"expires_at": now.Add(embedTokenTTL),
	})
}

// ParseEmbedToken validates an embed token and returns its claims
func ParseEmbedToken(tokenString string) (*EmbedClaims, error) {
	claims := &EmbedClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(embedTokenSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
